//go:build onnx

package embedding

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/latentcontext/latentcontext/internal/config"
	"github.com/latentcontext/latentcontext/internal/jsonx"
)

const onnxMaxSeqLen = 128

// newLocalProvider returns the ONNX-backed local embedder. Model files live
// under LATENTCONTEXT_MODEL_DIR (default ./models): <dir>/model.onnx plus
// <dir>/tokenizer.json with a BERT WordPiece vocab.
func newLocalProvider(ctx context.Context, cfg config.Embedding, logger *zap.Logger) (Provider, error) {
	dir := os.Getenv("LATENTCONTEXT_MODEL_DIR")
	if dir == "" {
		dir = "./models"
	}

	if lib := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); lib != "" {
		ort.SetSharedLibraryPath(lib)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("initialize onnx runtime: %w", err)
	}

	tok, err := loadWordPieceVocab(filepath.Join(dir, "tokenizer.json"))
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(filepath.Join(dir, "model.onnx"),
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	logger.Info("local embedder initialized (onnx)",
		zap.String("model", cfg.Model), zap.Int("dimensions", cfg.Dimensions))

	return &onnxProvider{session: session, vocab: tok, dims: cfg.Dimensions}, nil
}

type onnxProvider struct {
	session *ort.DynamicAdvancedSession
	vocab   *wordPieceVocab
	dims    int
}

func (p *onnxProvider) Embed(ctx context.Context, text string) (Vector, error) {
	ids := p.vocab.tokenize(text)

	inputIDs := make([]int64, onnxMaxSeqLen)
	attention := make([]int64, onnxMaxSeqLen)
	tokenType := make([]int64, onnxMaxSeqLen)

	inputIDs[0] = clsTokenID
	attention[0] = 1
	n := len(ids)
	if n > onnxMaxSeqLen-2 {
		n = onnxMaxSeqLen - 2
	}
	for i := 0; i < n; i++ {
		inputIDs[i+1] = ids[i]
		attention[i+1] = 1
	}
	inputIDs[n+1] = sepTokenID
	attention[n+1] = 1

	shape := ort.NewShape(1, int64(onnxMaxSeqLen))
	idsT, err := ort.NewTensor(shape, inputIDs)
	if err != nil {
		return nil, err
	}
	defer idsT.Destroy()
	attT, err := ort.NewTensor(shape, attention)
	if err != nil {
		return nil, err
	}
	defer attT.Destroy()
	typT, err := ort.NewTensor(shape, tokenType)
	if err != nil {
		return nil, err
	}
	defer typT.Destroy()

	outputs := []ort.Value{nil}
	if err := p.session.Run([]ort.Value{idsT, attT, typT}, outputs); err != nil {
		return nil, fmt.Errorf("onnx inference: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type")
	}
	return p.meanPool(out, attention)
}

// meanPool averages hidden states over attended tokens and normalizes.
func (p *onnxProvider) meanPool(out *ort.Tensor[float32], attention []int64) (Vector, error) {
	data := out.GetData()
	shape := out.GetShape()

	if len(shape) == 2 {
		if len(data) < p.dims {
			return nil, fmt.Errorf("output dimension mismatch: got %d, want %d", len(data), p.dims)
		}
		vec := make(Vector, p.dims)
		copy(vec, data[:p.dims])
		return Normalize(vec), nil
	}
	if len(shape) != 3 || shape[2] != int64(p.dims) {
		return nil, fmt.Errorf("unexpected output shape %v", shape)
	}

	seqLen := int(shape[1])
	vec := make(Vector, p.dims)
	var attended float32
	for i := 0; i < seqLen; i++ {
		if attention[i] == 0 {
			continue
		}
		attended++
		off := i * p.dims
		for j := 0; j < p.dims; j++ {
			vec[j] += data[off+j]
		}
	}
	if attended == 0 {
		return vec, nil
	}
	for j := range vec {
		vec[j] /= attended
	}
	return Normalize(vec), nil
}

func (p *onnxProvider) Dimensions() int { return p.dims }

func (p *onnxProvider) Close() error {
	if p.session != nil {
		return p.session.Destroy()
	}
	return nil
}

const (
	unkTokenID int64 = 100
	clsTokenID int64 = 101
	sepTokenID int64 = 102
)

type wordPieceVocab struct {
	vocab map[string]int
}

func loadWordPieceVocab(path string) (*wordPieceVocab, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := jsonx.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	return &wordPieceVocab{vocab: raw.Model.Vocab}, nil
}

func (v *wordPieceVocab) tokenize(text string) []int64 {
	var ids []int64
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'")
		if word == "" {
			continue
		}
		if id, ok := v.vocab[word]; ok {
			ids = append(ids, int64(id))
			continue
		}
		ids = append(ids, v.wordPiece(word)...)
	}
	return ids
}

// wordPiece greedily matches the longest known subword, prefixing
// continuations with "##".
func (v *wordPieceVocab) wordPiece(word string) []int64 {
	var ids []int64
	start := 0
	for start < len(word) {
		end := len(word)
		matched := false
		for end > start {
			sub := word[start:end]
			if start > 0 {
				sub = "##" + sub
			}
			if id, ok := v.vocab[sub]; ok {
				ids = append(ids, int64(id))
				start = end
				matched = true
				break
			}
			end--
		}
		if !matched {
			ids = append(ids, unkTokenID)
			start++
		}
	}
	return ids
}
