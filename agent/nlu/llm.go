package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/mRafaelSilva/Projeto-ASM/agent/contract"
	statex "github.com/mRafaelSilva/Projeto-ASM/agent/state"
)

const llmSystemPrompt = `You classify a student's message for a university
secretariat and extract structured fields. Reply with a single JSON object:
{"intencao": "inscricao"|"horarios"|"pagamentos"|"desconhecida",
 "numero_aluno": "<digits or empty>",
 "curso": "<program code or empty>",
 "disciplinas": ["<discipline ids>"]}
Use "desconhecida" when unsure. Never add fields or prose.`

type llmExtraction struct {
	Intencao    string   `json:"intencao"`
	NumeroAluno string   `json:"numero_aluno,omitempty"`
	Curso       string   `json:"curso,omitempty"`
	Disciplinas []string `json:"disciplinas,omitempty"`
}

// LLMExtractor is the model-backed Extractor. It runs a structured-output
// chat graph and normalizes the result through the same helpers the regex
// matcher uses, so downstream slot handling is identical.
type LLMExtractor struct {
	runner compose.Runnable[map[string]any, llmExtraction]
}

func NewLLMExtractor(ctx context.Context, chatModel einomodel.BaseChatModel) (*LLMExtractor, error) {
	runner, err := compileExtractionGraph(ctx, chatModel)
	if err != nil {
		return nil, err
	}
	return &LLMExtractor{runner: runner}, nil
}

func (e *LLMExtractor) Extract(ctx context.Context, text string) (Extraction, error) {
	if strings.TrimSpace(text) == "" {
		return Extraction{}, fmt.Errorf("%w: text is empty", contractx.ErrValidation)
	}

	payload, err := json.Marshal(map[string]any{"texto": text})
	if err != nil {
		return Extraction{}, fmt.Errorf("%w: marshal extraction payload: %v", contractx.ErrValidation, err)
	}

	out, err := e.runner.Invoke(ctx, map[string]any{"input": string(payload)})
	if err != nil {
		return Extraction{}, fmt.Errorf("extraction invoke: %w", err)
	}

	result := Extraction{
		Intent: intentFromString(out.Intencao),
		Slots:  map[string]any{},
	}
	if id := NormalizeStudentID(out.NumeroAluno); id != "" {
		result.Slots[SlotNumeroAluno] = id
	}
	if curso := NormalizeProgram(out.Curso); curso != "" {
		result.Slots[SlotCurso] = curso
	}
	if discs := NormalizeDisciplines(out.Disciplinas); len(discs) > 0 {
		result.Slots[SlotDisciplina] = discs
	}
	return result, nil
}

func intentFromString(s string) statex.Intent {
	switch statex.Intent(strings.TrimSpace(strings.ToLower(s))) {
	case statex.IntentInscricao:
		return statex.IntentInscricao
	case statex.IntentHorarios:
		return statex.IntentHorarios
	case statex.IntentPagamentos:
		return statex.IntentPagamentos
	default:
		return statex.IntentUnknown
	}
}

func compileExtractionGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
) (compose.Runnable[map[string]any, llmExtraction], error) {
	template := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(llmSystemPrompt),
		schema.UserMessage("{input}"),
	)

	parser := schema.NewMessageJSONParser[llmExtraction](&schema.MessageJSONParseConfig{
		ParseFrom: schema.MessageParseFromContent,
	})

	graph := compose.NewGraph[map[string]any, llmExtraction]()
	if err := graph.AddChatTemplateNode("prompt", template); err != nil {
		return nil, fmt.Errorf("add extraction prompt node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add extraction model node: %w", err)
	}
	if err := graph.AddLambdaNode("parse_json", compose.MessageParser(parser)); err != nil {
		return nil, fmt.Errorf("add extraction parser node: %w", err)
	}

	if err := graph.AddEdge(compose.START, "prompt"); err != nil {
		return nil, fmt.Errorf("add extraction edge start->prompt: %w", err)
	}
	if err := graph.AddEdge("prompt", "model"); err != nil {
		return nil, fmt.Errorf("add extraction edge prompt->model: %w", err)
	}
	if err := graph.AddEdge("model", "parse_json"); err != nil {
		return nil, fmt.Errorf("add extraction edge model->parse: %w", err)
	}
	if err := graph.AddEdge("parse_json", compose.END); err != nil {
		return nil, fmt.Errorf("add extraction edge parse->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("nlu.extraction_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile extraction graph: %w", err)
	}
	return runner, nil
}
