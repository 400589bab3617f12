package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"reelsmith/internal/providers"
)

// fakeProvider implements providers.Provider; with upscale=true it also
// implements providers.Upscaler.
type fakeProvider struct {
	transformURL string
	transformErr error
	videoURL     string
	videoErr     error
	upscaleURL   string
	upscaleErr   error

	upscaleCalled bool
	lastPrompt    string
	lastDuration  int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) TransformImage(ctx context.Context, sourceURL, prompt string) (string, error) {
	f.lastPrompt = prompt
	return f.transformURL, f.transformErr
}

func (f *fakeProvider) GenerateVideo(ctx context.Context, imageURL, prompt string, durationSec int) (string, error) {
	f.lastPrompt = prompt
	f.lastDuration = durationSec
	return f.videoURL, f.videoErr
}

func (f *fakeProvider) EstimateCost(op providers.Operation) decimal.Decimal {
	switch op {
	case providers.OpTransform:
		return decimal.RequireFromString("0.03")
	case providers.OpAnimate:
		return decimal.RequireFromString("0.125")
	case providers.OpUpscale:
		return decimal.RequireFromString("0.02")
	}
	return decimal.Zero
}

type fakeUpscalingProvider struct {
	fakeProvider
}

func (f *fakeUpscalingProvider) UpscaleImage(ctx context.Context, imageURL string) (string, error) {
	f.upscaleCalled = true
	return f.upscaleURL, f.upscaleErr
}

func TestTransformWithoutUpscale(t *testing.T) {
	p := &fakeProvider{transformURL: "https://cdn.example.com/out.png"}
	gen := NewMediaGenerator(p, nil, nil, false, zerolog.Nop())

	url, err := gen.Transform(context.Background(), "https://cdn.example.com/src.jpg", "watercolor")
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if url != "https://cdn.example.com/out.png" {
		t.Errorf("url = %q", url)
	}
	if p.lastPrompt != "watercolor" {
		t.Errorf("prompt = %q, want passthrough without enhancer", p.lastPrompt)
	}
}

func TestTransformAppliesUpscale(t *testing.T) {
	p := &fakeUpscalingProvider{}
	p.transformURL = "https://cdn.example.com/out.png"
	p.upscaleURL = "https://cdn.example.com/out-4k.png"

	gen := NewMediaGenerator(p, nil, nil, true, zerolog.Nop())

	url, err := gen.Transform(context.Background(), "src", "prompt")
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if !p.upscaleCalled {
		t.Error("upscaler was not invoked")
	}
	if url != "https://cdn.example.com/out-4k.png" {
		t.Errorf("url = %q, want upscaled URL", url)
	}
}

func TestTransformUpscaleFailureKeepsOriginal(t *testing.T) {
	p := &fakeUpscalingProvider{}
	p.transformURL = "https://cdn.example.com/out.png"
	p.upscaleErr = errors.New("upscaler down")

	gen := NewMediaGenerator(p, nil, nil, true, zerolog.Nop())

	url, err := gen.Transform(context.Background(), "src", "prompt")
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if url != "https://cdn.example.com/out.png" {
		t.Errorf("url = %q, want transformed URL despite upscale failure", url)
	}
}

func TestTransformPropagatesProviderError(t *testing.T) {
	wantErr := errors.New("vendor exploded")
	p := &fakeProvider{transformErr: wantErr}
	gen := NewMediaGenerator(p, nil, nil, false, zerolog.Nop())

	if _, err := gen.Transform(context.Background(), "src", "prompt"); !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want %v", err, wantErr)
	}
}

func TestAnimatePassesDuration(t *testing.T) {
	p := &fakeProvider{videoURL: "https://cdn.example.com/out.mp4"}
	gen := NewMediaGenerator(p, nil, nil, false, zerolog.Nop())

	url, err := gen.Animate(context.Background(), "img", "slow zoom", 7)
	if err != nil {
		t.Fatalf("Animate failed: %v", err)
	}
	if url != "https://cdn.example.com/out.mp4" {
		t.Errorf("url = %q", url)
	}
	if p.lastDuration != 7 {
		t.Errorf("duration = %d, want 7", p.lastDuration)
	}
}

func TestFormatRejectsEmptyURL(t *testing.T) {
	gen := NewMediaGenerator(&fakeProvider{}, nil, nil, false, zerolog.Nop())

	if _, err := gen.Format(context.Background(), "   "); err == nil {
		t.Fatal("expected error for empty video URL")
	}
}

func TestFormatPassesReachableURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method = %s, want HEAD", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	gen := NewMediaGenerator(&fakeProvider{}, nil, nil, false, zerolog.Nop())

	url, err := gen.Format(context.Background(), server.URL+"/final.mp4")
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	if url != server.URL+"/final.mp4" {
		t.Errorf("url = %q, want unchanged", url)
	}
}

func TestFormatRejectsMissingAsset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	gen := NewMediaGenerator(&fakeProvider{}, nil, nil, false, zerolog.Nop())

	if _, err := gen.Format(context.Background(), server.URL+"/gone.mp4"); err == nil {
		t.Fatal("expected error for 404 video URL")
	}
}

func TestPipelineCost(t *testing.T) {
	// Without upscale: 0.03 + 0.125
	plain := NewMediaGenerator(&fakeProvider{}, nil, nil, false, zerolog.Nop())
	if got := plain.PipelineCost(); !got.Equal(decimal.RequireFromString("0.155")) {
		t.Errorf("cost = %s, want 0.155", got)
	}

	// Upscale enabled but provider can't upscale: unchanged
	noUpscaler := NewMediaGenerator(&fakeProvider{}, nil, nil, true, zerolog.Nop())
	if got := noUpscaler.PipelineCost(); !got.Equal(decimal.RequireFromString("0.155")) {
		t.Errorf("cost = %s, want 0.155 when vendor lacks upscaling", got)
	}

	// Upscale enabled with a capable provider: + 0.02
	withUpscale := NewMediaGenerator(&fakeUpscalingProvider{}, nil, nil, true, zerolog.Nop())
	if got := withUpscale.PipelineCost(); !got.Equal(decimal.RequireFromString("0.175")) {
		t.Errorf("cost = %s, want 0.175", got)
	}
}
