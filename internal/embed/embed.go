// Package embed implements stage 3 of the tokenize→embed pipeline (spec
// §4.C): a single forward pass through a loaded transformer, pooled into a
// fixed-dimension Vector and L2-normalised.
//
// Embedder is the abstract capability spec §9 calls for: "A silent
// implementation that returns zero vectors and certainty=0 must exist so
// the rest of the system is testable without a transformer model." That
// implementation is ZeroEmbedder. OnnxEmbedder is the real one, running
// inference through github.com/yalue/onnxruntime_go over ids produced by
// internal/tokenizer.
package embed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/chitta-project/chitta/internal/tokenizer"
	"github.com/chitta-project/chitta/internal/vector"
)

// ErrNotReady is returned by Transform when the embedder has no usable
// model loaded (spec §4.C Failure modes: "vocabulary missing -> embedder
// reports not-ready").
var ErrNotReady = errors.New("embedder: not ready")

// ErrUnavailable is returned when inference itself fails after the
// embedder reported ready (spec §4.C: "inference exception -> propagate as
// embedder unavailable").
var ErrUnavailable = errors.New("embedder: unavailable")

// Pooling selects how per-token transformer outputs are combined into a
// single sentence vector (spec §4.C.3).
type Pooling string

const (
	Mean     Pooling = "mean" // attention-mask-weighted mean of token outputs (default)
	CLS      Pooling = "cls"
	Max      Pooling = "max"
	MeanSqrt Pooling = "mean_sqrt" // masked sum divided by sqrt(token count)
)

// Artha ("meaning") is the result of embedding one piece of text: the
// vector itself, a certainty in [0,1] (1.0 for real model inference, 0.0
// for the zero-vector fallback), and where it came from.
type Artha struct {
	Vector    vector.Vector
	Certainty float64
	Source    string // "model" or "zero"
}

// Embedder is the abstract text->vector capability used throughout the
// engine. Implementations must be safe for concurrent use.
type Embedder interface {
	// Transform embeds a single text.
	Transform(ctx context.Context, text string) (Artha, error)
	// TransformBatch embeds multiple texts in one call where the underlying
	// implementation can batch (e.g. a single ONNX Run for several inputs).
	TransformBatch(ctx context.Context, texts []string) ([]Artha, error)
	// Dimension returns D, the fixed output dimension.
	Dimension() int
	// Ready reports whether the embedder can currently serve Transform
	// calls. ZeroEmbedder always reports true (it serves zero vectors); an
	// OnnxEmbedder missing its model reports false.
	Ready() bool
}

// ZeroEmbedder is the mandatory silent fallback: it always "succeeds",
// returning a zero vector of the configured dimension and certainty 0, so
// BM25-only retrieval keeps working when no model is loaded (spec §4.C
// Failure modes, §9).
type ZeroEmbedder struct {
	dim int
}

// NewZeroEmbedder returns a ZeroEmbedder of dimension dim.
func NewZeroEmbedder(dim int) *ZeroEmbedder {
	return &ZeroEmbedder{dim: dim}
}

func (z *ZeroEmbedder) Transform(ctx context.Context, text string) (Artha, error) {
	return Artha{Vector: vector.New(z.dim), Certainty: 0, Source: "zero"}, nil
}

func (z *ZeroEmbedder) TransformBatch(ctx context.Context, texts []string) ([]Artha, error) {
	out := make([]Artha, len(texts))
	for i := range texts {
		out[i] = Artha{Vector: vector.New(z.dim), Certainty: 0, Source: "zero"}
	}
	return out, nil
}

func (z *ZeroEmbedder) Dimension() int { return z.dim }
func (z *ZeroEmbedder) Ready() bool    { return true }

// OnnxConfig configures the ONNX-backed transformer embedder.
type OnnxConfig struct {
	ModelPath    string // path to model.onnx
	VocabPath    string // path to vocab.txt (WordPiece vocabulary)
	Dimension    int    // D, the engine's configured embedding dimension
	MaxSeqLen    int    // default 128
	Pooling      Pooling
	InputNames   []string // default {"input_ids", "attention_mask", "token_type_ids"}
	OutputName   string   // default "last_hidden_state"
	NumThreads   int
}

// OnnxEmbedder runs a single forward pass through a loaded ONNX transformer,
// pooling token outputs per Config.Pooling, then truncating/zero-padding to
// Dimension and L2-normalising (spec §4.C.3).
type OnnxEmbedder struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	tok     *tokenizer.Tokenizer
	cfg     OnnxConfig
	ready   bool
}

// NewOnnxEmbedder loads the vocabulary and ONNX model described by cfg. If
// either fails to load, the returned embedder has Ready()==false rather than
// erroring — callers fall back to ZeroEmbedder per spec §4.C.
func NewOnnxEmbedder(cfg OnnxConfig) (*OnnxEmbedder, error) {
	if cfg.MaxSeqLen <= 0 {
		cfg.MaxSeqLen = 128
	}
	if cfg.Pooling == "" {
		cfg.Pooling = Mean
	}
	if len(cfg.InputNames) == 0 {
		cfg.InputNames = []string{"input_ids", "attention_mask", "token_type_ids"}
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "last_hidden_state"
	}

	e := &OnnxEmbedder{cfg: cfg}

	tok, err := tokenizer.LoadVocabFile(cfg.VocabPath, tokenizer.Config{MaxLen: cfg.MaxSeqLen})
	if err != nil || !tok.Ready() {
		return e, nil // not ready; caller falls back to zero embedding
	}
	e.tok = tok

	if err := ort.InitializeEnvironment(); err != nil {
		return e, nil
	}
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return e, nil
	}
	defer opts.Destroy()
	threads := cfg.NumThreads
	if threads <= 0 {
		threads = 4
	}
	_ = opts.SetIntraOpNumThreads(threads)
	_ = opts.SetInterOpNumThreads(1)

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, cfg.InputNames, []string{cfg.OutputName}, opts)
	if err != nil {
		return e, nil
	}
	e.session = session
	e.ready = true
	return e, nil
}

func (e *OnnxEmbedder) Dimension() int { return e.cfg.Dimension }
func (e *OnnxEmbedder) Ready() bool    { return e.ready }

// Close releases the ONNX session.
func (e *OnnxEmbedder) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	e.ready = false
}

func (e *OnnxEmbedder) Transform(ctx context.Context, text string) (Artha, error) {
	out, err := e.TransformBatch(ctx, []string{text})
	if err != nil {
		return Artha{}, err
	}
	return out[0], nil
}

func (e *OnnxEmbedder) TransformBatch(ctx context.Context, texts []string) ([]Artha, error) {
	if !e.Ready() {
		return nil, ErrNotReady
	}
	if len(texts) == 0 {
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	encs := make([]tokenizer.Encoding, len(texts))
	seqLen := e.tok.MaxLen()
	for i, text := range texts {
		encs[i] = e.tok.Encode(text, true)
	}

	batch := len(texts)
	flatIDs := make([]int64, batch*seqLen)
	flatMask := make([]int64, batch*seqLen)
	flatType := make([]int64, batch*seqLen)
	for i, enc := range encs {
		for j := 0; j < seqLen; j++ {
			flatIDs[i*seqLen+j] = int64(enc.InputIDs[j])
			flatMask[i*seqLen+j] = int64(enc.AttentionMask[j])
			flatType[i*seqLen+j] = int64(enc.TokenTypeIDs[j])
		}
	}

	shape := ort.NewShape(int64(batch), int64(seqLen))
	idsT, err := ort.NewTensor(shape, flatIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: input_ids tensor: %v", ErrUnavailable, err)
	}
	defer idsT.Destroy()
	maskT, err := ort.NewTensor(shape, flatMask)
	if err != nil {
		return nil, fmt.Errorf("%w: attention_mask tensor: %v", ErrUnavailable, err)
	}
	defer maskT.Destroy()
	typeT, err := ort.NewTensor(shape, flatType)
	if err != nil {
		return nil, fmt.Errorf("%w: token_type_ids tensor: %v", ErrUnavailable, err)
	}
	defer typeT.Destroy()

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{idsT, maskT, typeT}, outputs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() {
		if outputs[0] != nil {
			outputs[0].Destroy()
		}
	}()

	hiddenTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("%w: unexpected output tensor type", ErrUnavailable)
	}
	hidden := hiddenTensor.GetData()
	shapeOut := hiddenTensor.GetShape()
	hiddenDim := int(shapeOut[2])

	results := make([]Artha, batch)
	for i := 0; i < batch; i++ {
		tokenOutputs := hidden[i*seqLen*hiddenDim : (i+1)*seqLen*hiddenDim]
		pooled := pool(tokenOutputs, encs[i].AttentionMask, seqLen, hiddenDim, e.cfg.Pooling)
		v := vector.Vector(pooled).Resize(e.cfg.Dimension)
		v.Normalize()
		results[i] = Artha{Vector: v, Certainty: 1.0, Source: "model"}
	}
	return results, nil
}

// pool combines per-token hidden states into one sentence vector.
func pool(hidden []float32, mask []int32, seqLen, hiddenDim int, strategy Pooling) []float32 {
	out := make([]float32, hiddenDim)
	switch strategy {
	case CLS:
		copy(out, hidden[:hiddenDim])
	case Max:
		for d := 0; d < hiddenDim; d++ {
			out[d] = hidden[d]
		}
		for t := 1; t < seqLen; t++ {
			if mask[t] == 0 {
				continue
			}
			base := t * hiddenDim
			for d := 0; d < hiddenDim; d++ {
				if v := hidden[base+d]; v > out[d] {
					out[d] = v
				}
			}
		}
	case MeanSqrt:
		var count float32
		for t := 0; t < seqLen; t++ {
			if mask[t] == 0 {
				continue
			}
			base := t * hiddenDim
			for d := 0; d < hiddenDim; d++ {
				out[d] += hidden[base+d]
			}
			count++
		}
		if count > 0 {
			denom := sqrtf32(count)
			for d := 0; d < hiddenDim; d++ {
				out[d] /= denom
			}
		}
	default: // Mean: attention-mask-weighted mean
		var count float32
		for t := 0; t < seqLen; t++ {
			if mask[t] == 0 {
				continue
			}
			base := t * hiddenDim
			for d := 0; d < hiddenDim; d++ {
				out[d] += hidden[base+d]
			}
			count++
		}
		if count > 0 {
			for d := 0; d < hiddenDim; d++ {
				out[d] /= count
			}
		}
	}
	return out
}

func sqrtf32(x float32) float32 {
	// local helper to avoid importing math for a single sqrt on float32
	if x <= 0 {
		return 1
	}
	z := x
	for i := 0; i < 20; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}
