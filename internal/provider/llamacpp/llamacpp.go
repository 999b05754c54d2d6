package llamacpp

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hybridgroup/yzma/pkg/llama"

	"github.com/samcharles93/logtrains/internal/backend"
	"github.com/samcharles93/logtrains/internal/inference"
)

const allLayers = 999

var (
	loadOnce sync.Once
	loadErr  error
)

func (f *Factory) load() error {
	loadOnce.Do(func() {
		libPath := f.LibPath
		if libPath == "" {
			libPath = DefaultLibPath()
		}
		if err := llama.Load(libPath); err != nil {
			loadErr = fmt.Errorf("%w: load %s: %w", ErrUnavailable, libPath, err)
			return
		}
		llama.Init()
		llama.LogSet(llama.LogSilent())
		f.log().Debug("llama.cpp loaded", "lib", libPath)
	})
	return loadErr
}

// deviceByName finds the first ggml backend device whose name mentions
// want, e.g. "cuda" or "metal".
func deviceByName(want string) (llama.GGMLBackendDevice, string, bool) {
	count := llama.GGMLBackendDeviceCount()
	for i := uint64(0); i < count; i++ {
		dev := llama.GGMLBackendDeviceGet(i)
		name := llama.GGMLBackendDeviceName(dev)
		if strings.Contains(strings.ToLower(name), want) {
			return dev, name, true
		}
	}
	return 0, "", false
}

// InitDevice loads the runtime and checks that dev is usable.
func (f *Factory) InitDevice(dev backend.Device) error {
	if err := f.load(); err != nil {
		return err
	}
	if dev == backend.CPU {
		return nil
	}
	if _, name, ok := deviceByName(dev.String()); ok {
		f.log().Debug("ggml device found", "device", dev.String(), "name", name)
		return nil
	}
	return fmt.Errorf("no %s device exposed by llama.cpp", dev)
}

// Open loads weightPath with every layer offloaded to dev, or none for CPU.
func (f *Factory) Open(ctx context.Context, weightPath string, dev backend.Device, cfg inference.GenerationConfig) (inference.Provider, error) {
	if err := f.load(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mparams := llama.ModelDefaultParams()
	mparams.NGpuLayers = 0
	if dev.Accelerator() {
		if gdev, _, ok := deviceByName(dev.String()); ok {
			mparams.SetDevices([]llama.GGMLBackendDevice{gdev})
		}
		mparams.NGpuLayers = allLayers
	}
	mdl, err := llama.ModelLoadFromFile(weightPath, mparams)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", weightPath, err)
	}

	cparams := llama.ContextDefaultParams()
	cparams.NCtx = uint32(cfg.MaxContextTokens)
	// The whole bounded prompt is prefilled in one batch.
	cparams.NBatch = uint32(cfg.InputBudget())
	cparams.NUbatch = uint32(cfg.InputBudget())
	cparams.Embeddings = 0
	lctx, err := llama.InitFromModel(mdl, cparams)
	if err != nil {
		llama.ModelFree(mdl)
		return nil, fmt.Errorf("create context: %w", err)
	}

	vocab := llama.ModelGetVocab(mdl)
	p := &Provider{
		model: mdl,
		lctx:  lctx,
		vocab: int(llama.VocabNTokens(vocab)),
	}
	f.log().Info("model loaded", "path", weightPath, "device", dev.String(), "desc", llama.ModelDesc(mdl), "vocab", p.vocab)
	return p, nil
}

// Provider is a single llama.cpp context. The KV cache holds every token
// decoded since the last Reset.
type Provider struct {
	model llama.Model
	lctx  llama.Context
	vocab int
	pos   int
}

func (p *Provider) VocabSize() int { return p.vocab }

func (p *Provider) Forward(ctx context.Context, window []uint32, startPos int) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if startPos != p.pos {
		return nil, fmt.Errorf("position mismatch: cache at %d, window starts at %d", p.pos, startPos)
	}
	if len(window) == 0 {
		return nil, fmt.Errorf("empty window")
	}
	toks := make([]llama.Token, len(window))
	for i, id := range window {
		toks[i] = llama.Token(id)
	}
	if _, err := llama.Decode(p.lctx, llama.BatchGetOne(toks)); err != nil {
		return nil, fmt.Errorf("decode at %d: %w", startPos, err)
	}
	p.pos += len(window)

	logits, err := llama.GetLogitsIth(p.lctx, -1, p.vocab)
	if err != nil {
		return nil, fmt.Errorf("read logits: %w", err)
	}
	out := make([]float32, len(logits))
	copy(out, logits)
	return out, nil
}

// Reset clears the KV cache so the next Forward starts at position zero.
func (p *Provider) Reset() error {
	mem, err := llama.GetMemory(p.lctx)
	if err != nil {
		return fmt.Errorf("get memory: %w", err)
	}
	llama.MemoryClear(mem, true)
	p.pos = 0
	return nil
}

func (p *Provider) Close() error {
	llama.Free(p.lctx)
	llama.ModelFree(p.model)
	return nil
}
