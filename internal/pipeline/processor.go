package pipeline

import (
	"context"
	"fmt"
	"image"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dunamismax/mediaflow/internal/artifact"
	"github.com/dunamismax/mediaflow/internal/domain"
	"github.com/dunamismax/mediaflow/internal/telemetry"
)

// Options tune the image pipeline. Zero fields take the defaults.
type Options struct {
	LargeSourceBytes int64
	MaxEdge          int
	SVGCanvas        int
	HEIFEncoder      string
}

func DefaultOptions() Options {
	return Options{
		LargeSourceBytes: 10 * 1024 * 1024,
		MaxEdge:          1920,
		SVGCanvas:        1024,
		HEIFEncoder:      "heif-enc",
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.LargeSourceBytes <= 0 {
		o.LargeSourceBytes = d.LargeSourceBytes
	}
	if o.MaxEdge <= 0 {
		o.MaxEdge = d.MaxEdge
	}
	if o.SVGCanvas <= 0 {
		o.SVGCanvas = d.SVGCanvas
	}
	if o.HEIFEncoder == "" {
		o.HEIFEncoder = d.HEIFEncoder
	}
	return o
}

// Processor runs image conversions. It holds no per-call state and is safe
// for concurrent use.
type Processor struct {
	opts    Options
	fetcher artifact.Fetcher
	emitter artifact.Emitter
	codec   HEIFCodec
	logger  zerolog.Logger
	tracer  trace.Tracer
}

func NewProcessor(opts Options, logger zerolog.Logger) (*Processor, error) {
	opts = opts.withDefaults()

	codec, err := newHEIFCodec(opts, logger)
	if err != nil {
		return nil, fmt.Errorf("build heif codec: %w", err)
	}

	return &Processor{
		opts:    opts,
		fetcher: artifact.LocalFileFetcher{},
		emitter: artifact.LocalFileEmitter{},
		codec:   codec,
		logger:  logger.With().Str("component", "image").Logger(),
		tracer:  otel.Tracer(telemetry.TracerName),
	}, nil
}

// CodecName reports which HEIF/AVIF backend this build uses.
func (p *Processor) CodecName() string {
	return p.codec.Name()
}

// ConvertImage converts one staged image. It never panics and never returns
// a raw error: every outcome is a Result.
func (p *Processor) ConvertImage(ctx context.Context, req domain.ImageRequest) (result domain.Result) {
	ctx, span := p.tracer.Start(ctx, "pipeline.ConvertImage", trace.WithAttributes(
		attribute.String("mediaflow.source", req.SourceFilename),
		attribute.String("mediaflow.target", req.TargetFormat),
	))
	defer span.End()

	defer func() {
		if v := recover(); v != nil {
			p.logger.Error().Interface("panic", v).Str("request", req.Describe()).Msg("image conversion panicked")
			span.SetStatus(codes.Error, "panic")
			result = domain.Recovered(v)
		}
	}()

	success, err := p.convert(ctx, req)
	if err != nil {
		failure := domain.FailureFrom(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(failure.Kind))
		p.logger.Warn().Str("kind", string(failure.Kind)).Str("request", req.Describe()).Msg(failure.Message)
		return domain.Result{Failure: failure}
	}

	span.SetAttributes(attribute.Int64("mediaflow.converted_bytes", success.ConvertedSize))
	p.logger.Info().
		Str("request", req.Describe()).
		Str("output", success.OutputPath).
		Str("original_size", humanize.IBytes(uint64(success.OriginalSize))).
		Str("converted_size", humanize.IBytes(uint64(success.ConvertedSize))).
		Msg("image converted")
	return domain.Succeeded(success)
}

func (p *Processor) convert(ctx context.Context, req domain.ImageRequest) (domain.Success, error) {
	if err := req.Validate(); err != nil {
		return domain.Success{}, err
	}
	target, _ := domain.ParseImageFormat(req.TargetFormat)

	sourceFormat, ok := domain.ParseImageFormat(artifact.SourceToken(req.SourceFilename))
	if !ok {
		return domain.Success{}, domain.Errorf(domain.KindUnsupportedFormat, "unsupported source format: %q", artifact.SourceToken(req.SourceFilename))
	}

	src, err := p.fetcher.Fetch(ctx, req.SourcePath)
	if err != nil {
		return domain.Success{}, err
	}

	name := artifact.OutputName(req.SourceFilename, req.TargetFormat)

	if sourceFormat == domain.ImageSVG && target == domain.ImageSVG {
		p.logger.Debug().Str("source", req.SourceFilename).Msg("svg to svg, copying source bytes")
		out, err := p.emitter.Emit(ctx, src.Dir(), name, src.Data)
		if err != nil {
			return domain.Success{}, err
		}
		return domain.Success{
			OutputPath:    out.Path,
			OriginalSize:  src.Size,
			ConvertedSize: out.Bytes,
			Format:        target.String(),
		}, nil
	}

	img, err := p.decode(ctx, src, sourceFormat)
	if err != nil {
		return domain.Success{}, err
	}

	img, err = p.normalize(img, src.Size, req, target)
	if err != nil {
		return domain.Success{}, err
	}

	data, err := p.encode(ctx, img, target, req.Quality, src.Dir())
	if err != nil {
		return domain.Success{}, err
	}

	out, err := p.emitter.Emit(ctx, src.Dir(), name, data)
	if err != nil {
		return domain.Success{}, err
	}

	bounds := img.Bounds()
	return domain.Success{
		OutputPath:    out.Path,
		OriginalSize:  src.Size,
		ConvertedSize: out.Bytes,
		Format:        target.String(),
		Width:         bounds.Dx(),
		Height:        bounds.Dy(),
	}, nil
}

func (p *Processor) span(ctx context.Context, name string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name)
}

func dims(img image.Image) (int, int) {
	b := img.Bounds()
	return b.Dx(), b.Dy()
}
