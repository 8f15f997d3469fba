package metrics

/*
Labels for metrics reported by bluegreen.
*/

const (
	LabelSuccess = "success"
	LabelMethod  = "method"

	// Labels for release metrics
	LabelStage  = "stage"
	LabelColor  = "color"
	LabelResult = "result"

	// Labels for cluster and registry requests
	LabelKind     = "kind"
	LabelVerb     = "verb"
	LabelRegistry = "registry"
)
