package embedding

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"
)

type ONNXConfig struct {
	ModelPath     string
	TokenizerPath string
	SharedLibPath string
	MaxLength     int
	BatchSize     int
	// Prefix is prepended to every text, e.g. "passage: " for e5 models.
	Prefix string
}

// ONNXEmbedder runs a sentence-transformer export locally and mean-pools
// the last hidden state over the attention mask.
type ONNXEmbedder struct {
	cfg ONNXConfig

	mu         sync.Mutex
	inited     bool
	tk         *tokenizer.Tokenizer
	session    *ort.DynamicAdvancedSession
	inputNames []string
}

// NewONNXEmbedder creates an embedder that will lazily load the tokenizer,
// runtime and model on first use.
func NewONNXEmbedder(cfg ONNXConfig) *ONNXEmbedder {
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 512
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	return &ONNXEmbedder{cfg: cfg}
}

func (e *ONNXEmbedder) Name() string {
	return "onnx:" + e.cfg.ModelPath
}

// initLocked loads the ONNX shared library, environment, tokenizer and session.
func (e *ONNXEmbedder) initLocked() error {
	if e.inited {
		return nil
	}

	if e.cfg.SharedLibPath != "" {
		ort.SetSharedLibraryPath(e.cfg.SharedLibPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("onnx init environment: %w", err)
		}
	}

	tk, err := pretrained.FromFile(e.cfg.TokenizerPath)
	if err != nil {
		return fmt.Errorf("load tokenizer: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(e.cfg.ModelPath)
	if err != nil {
		return fmt.Errorf("onnx get input/output info: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return fmt.Errorf("onnx model has no inputs or outputs")
	}

	var inputNames []string
	for _, in := range inputs {
		switch in.Name {
		case "input_ids", "attention_mask", "token_type_ids":
			inputNames = append(inputNames, in.Name)
		default:
			return fmt.Errorf("onnx model has unsupported input %q", in.Name)
		}
	}
	if !slices.Contains(inputNames, "input_ids") || !slices.Contains(inputNames, "attention_mask") {
		return fmt.Errorf("onnx model needs input_ids and attention_mask, has %v", inputNames)
	}
	outputName := outputs[0].Name
	for _, out := range outputs {
		if out.Name == "last_hidden_state" {
			outputName = out.Name
		}
	}

	session, err := ort.NewDynamicAdvancedSession(e.cfg.ModelPath, inputNames, []string{outputName}, nil)
	if err != nil {
		return fmt.Errorf("onnx new session: %w", err)
	}

	e.tk = tk
	e.session = session
	e.inputNames = inputNames
	e.inited = true
	return nil
}

func (e *ONNXEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.initLocked(); err != nil {
		return nil, err
	}

	out := make([][]float64, 0, len(texts))
	err := batches(len(texts), e.cfg.BatchSize, func(start, end int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		vecs, err := e.embedBatch(texts[start:end])
		if err != nil {
			return fmt.Errorf("embed texts %d-%d failed: %w", start, end, err)
		}
		out = append(out, vecs...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type encoded struct {
	ids, mask, types []int
}

func (e *ONNXEmbedder) encode(text string) (encoded, error) {
	en, err := e.tk.EncodeSingle(e.cfg.Prefix+Preprocess(text), true)
	if err != nil {
		return encoded{}, fmt.Errorf("tokenize: %w", err)
	}
	enc := encoded{ids: en.Ids, mask: en.AttentionMask, types: en.TypeIds}
	if limit := e.cfg.MaxLength; len(enc.ids) > limit {
		// keep the closing special token
		enc.ids = truncate(enc.ids, limit)
		enc.mask = truncate(enc.mask, limit)
		enc.types = truncate(enc.types, limit)
	}
	return enc, nil
}

func truncate(v []int, limit int) []int {
	if len(v) <= limit {
		return v
	}
	out := make([]int, limit)
	copy(out, v[:limit-1])
	out[limit-1] = v[len(v)-1]
	return out
}

func (e *ONNXEmbedder) embedBatch(texts []string) ([][]float64, error) {
	encs := make([]encoded, len(texts))
	seqLen := 1
	for i, text := range texts {
		enc, err := e.encode(text)
		if err != nil {
			return nil, err
		}
		encs[i] = enc
		seqLen = max(seqLen, len(enc.ids))
	}

	batch := len(texts)
	ids := make([]int64, batch*seqLen)
	mask := make([]int64, batch*seqLen)
	types := make([]int64, batch*seqLen)
	for i, enc := range encs {
		for j := range enc.ids {
			ids[i*seqLen+j] = int64(enc.ids[j])
			if j < len(enc.mask) {
				mask[i*seqLen+j] = int64(enc.mask[j])
			}
			if j < len(enc.types) {
				types[i*seqLen+j] = int64(enc.types[j])
			}
		}
	}

	shape := ort.NewShape(int64(batch), int64(seqLen))
	byName := map[string][]int64{"input_ids": ids, "attention_mask": mask, "token_type_ids": types}
	inputs := make([]ort.Value, 0, len(e.inputNames))
	defer func() {
		for _, v := range inputs {
			v.Destroy()
		}
	}()
	for _, name := range e.inputNames {
		t, err := ort.NewTensor(shape, byName[name])
		if err != nil {
			return nil, fmt.Errorf("onnx new %s tensor: %w", name, err)
		}
		inputs = append(inputs, t)
	}

	outputs := []ort.Value{nil}
	if err := e.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}
	defer outputs[0].Destroy()

	hidden, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("onnx output is not a float32 tensor")
	}
	outShape := hidden.GetShape()
	if len(outShape) != 3 || outShape[0] != int64(batch) || outShape[1] != int64(seqLen) {
		return nil, fmt.Errorf("onnx output shape %v, want [%d %d hidden]", outShape, batch, seqLen)
	}
	return meanPool(hidden.GetData(), mask, batch, seqLen, int(outShape[2])), nil
}

// meanPool averages token states where the mask is set and L2-normalises
// each result.
func meanPool(states []float32, mask []int64, batch, seqLen, dim int) [][]float64 {
	out := make([][]float64, batch)
	for b := 0; b < batch; b++ {
		v := make([]float64, dim)
		count := 0
		for t := 0; t < seqLen; t++ {
			if mask[b*seqLen+t] == 0 {
				continue
			}
			count++
			row := states[(b*seqLen+t)*dim : (b*seqLen+t+1)*dim]
			for d, x := range row {
				v[d] += float64(x)
			}
		}
		if count > 0 {
			for d := range v {
				v[d] /= float64(count)
			}
		}
		out[b] = Normalize(v)
	}
	return out
}

// Close releases the session. The ONNX environment stays up for other users.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	e.inited = false
	return err
}
