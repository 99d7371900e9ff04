// Package output converts raw capability results into context
// Blocks. Parsing is tolerant: malformed model output is recovered
// best-effort and flagged, never raised past this boundary.
package output

import (
	"encoding/json"
	"log/slog"

	"github.com/nextlevelbuilder/runloop/internal/executor"
	"github.com/nextlevelbuilder/runloop/internal/state"
)

const (
	producerModel    = "model"
	producerExecutor = "executor"
	producerToolPfx  = "tool:"
)

// Handler turns executor Results into Blocks ready for write-back.
// Handle never returns an error; unusable payloads become error
// Blocks carrying the raw material.
type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

// Handle converts one Result into a Block for iteration i.
func (h *Handler) Handle(res executor.Result, iteration int) state.Block {
	if res.IsError {
		return state.Block{
			Iteration: iteration,
			Kind:      state.KindError,
			Producer:  producerExecutor,
			Content:   res.Payload,
			Meta:      map[string]string{state.MetaCapability: res.Capability},
		}
	}

	if res.Capability == executor.ModelCapability {
		return h.handleModel(res, iteration)
	}

	return state.Block{
		Iteration: iteration,
		Kind:      state.KindToolResult,
		Producer:  producerToolPfx + res.Capability,
		Content:   res.Payload,
	}
}

// handleModel parses the decision object the model was instructed to
// emit: {"thought", "tool": {"name", "args"}} or
// {"thought", "final_answer"}.
func (h *Handler) handleModel(res executor.Result, iteration int) state.Block {
	value, recovered, err := ParseTolerant(res.Payload)
	if err != nil {
		// No structure at all. Non-empty prose still moves the run
		// forward as a partial turn; an empty payload cannot.
		if res.Payload == "" {
			return state.Block{
				Iteration: iteration,
				Kind:      state.KindError,
				Producer:  producerModel,
				Content:   "model returned an empty payload",
				Meta:      map[string]string{state.MetaCapability: res.Capability},
			}
		}
		slog.Debug("model output unstructured, keeping raw text", "error", err)
		return state.Block{
			Iteration: iteration,
			Kind:      state.KindTurn,
			Producer:  producerModel,
			Content:   res.Payload,
			Meta:      map[string]string{state.MetaPartial: "true"},
		}
	}

	block := state.Block{
		Iteration: iteration,
		Kind:      state.KindTurn,
		Producer:  producerModel,
		Meta:      map[string]string{},
	}
	if recovered {
		block.Meta[state.MetaPartial] = "true"
	}

	if thought, ok := value["thought"].(string); ok {
		block.Content = thought
	}

	if final, ok := value["final_answer"].(string); ok && final != "" {
		block.Content = final
		block.Meta[state.MetaFinal] = "true"
		return block
	}

	if tool, ok := value["tool"].(map[string]interface{}); ok {
		if name, ok := tool["name"].(string); ok && name != "" {
			block.Meta[state.MetaTool] = name
			if args, ok := tool["args"]; ok {
				if encoded, err := json.Marshal(args); err == nil {
					block.Meta[state.MetaToolArgs] = string(encoded)
				}
			}
		}
	}

	if block.Content == "" && block.Meta[state.MetaTool] == "" {
		// Parsed but empty decision: keep the raw payload so the next
		// iteration has something to react to.
		block.Content = res.Payload
		block.Meta[state.MetaPartial] = "true"
	}
	return block
}
