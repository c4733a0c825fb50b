package cli

var (
	RenderReport       = renderReport
	RenderAnalysisJSON = renderAnalysisJSON
	RenderTurn         = renderTurn
	Converse           = converse
)
