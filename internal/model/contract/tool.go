package contract

// ToolChoiceMode directs the model's tool selection.
type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceAny      ToolChoiceMode = "any"
	ToolChoiceFunction ToolChoiceMode = "function"
)

// ToolChoice directs the model as to which tools to prefer. Function is
// set only when Mode is ToolChoiceFunction.
type ToolChoice struct {
	Mode     ToolChoiceMode `json:"mode"`
	Function string         `json:"function,omitempty"`
}

// ChooseAuto lets the model decide whether and which tool to call.
func ChooseAuto() ToolChoice { return ToolChoice{Mode: ToolChoiceAuto} }

// ChooseNone forbids tool calls.
func ChooseNone() ToolChoice { return ToolChoice{Mode: ToolChoiceNone} }

// ChooseFunction forces a call to a specific tool.
func ChooseFunction(name string) ToolChoice {
	return ToolChoice{Mode: ToolChoiceFunction, Function: name}
}

// ToolInfo is the tool descriptor passed to adapters: name, description,
// and a JSON-schema-like parameter tree.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ModelInputFunc rewrites the content of a tool result message before it is
// sent to the model. index is the position among results of the same tool,
// total the count of tool results across all tools in the conversation.
type ModelInputFunc func(index, total int, content MessageContent) MessageContent

// ViewerFunc renders a human-readable view of a tool call.
type ViewerFunc func(call ToolCall) string

// ToolDef is a registered tool definition. ModelInput and Viewer are
// optional hooks; DisableParallel requests that the model not issue this
// tool in parallel with others.
type ToolDef struct {
	Name            string
	Description     string
	Parameters      map[string]any
	ModelInput      ModelInputFunc
	Viewer          ViewerFunc
	DisableParallel bool
}

// Info returns the adapter-facing descriptor for the definition.
func (d ToolDef) Info() ToolInfo {
	return ToolInfo{Name: d.Name, Description: d.Description, Parameters: d.Parameters}
}

// ToolInfos extracts descriptors from a definition list.
func ToolInfos(defs []ToolDef) []ToolInfo {
	infos := make([]ToolInfo, 0, len(defs))
	for _, d := range defs {
		infos = append(infos, d.Info())
	}
	return infos
}

// DisableParallelTools reports whether any definition asks for parallel
// tool calling to be switched off.
func DisableParallelTools(defs []ToolDef) bool {
	for _, d := range defs {
		if d.DisableParallel {
			return true
		}
	}
	return false
}

// ToolCall is a single tool invocation requested by the model. Arguments is
// the raw JSON argument payload; View is an optional pre-rendered
// human-readable form attached by the orchestrator.
type ToolCall struct {
	ID        string `json:"id"`
	Function  string `json:"function"`
	Arguments string `json:"arguments,omitempty"`
	View      string `json:"view,omitempty"`
}
