package subtitle

import (
	"context"

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

// Converter runs subtitle conversions. Safe for concurrent use.
type Converter struct {
	fetcher artifact.Fetcher
	emitter artifact.Emitter
	logger  zerolog.Logger
	tracer  trace.Tracer
}

func NewConverter(logger zerolog.Logger) *Converter {
	return &Converter{
		fetcher: artifact.LocalFileFetcher{},
		emitter: artifact.LocalFileEmitter{},
		logger:  logger.With().Str("component", "subtitle").Logger(),
		tracer:  otel.Tracer(telemetry.TracerName),
	}
}

func (c *Converter) ConvertSubtitle(ctx context.Context, req domain.SubtitleRequest) (result domain.Result) {
	ctx, span := c.tracer.Start(ctx, "subtitle.ConvertSubtitle", trace.WithAttributes(
		attribute.String("mediaflow.source", req.SourceFilename),
		attribute.String("mediaflow.target", req.TargetFormat),
	))
	defer span.End()

	defer func() {
		if v := recover(); v != nil {
			c.logger.Error().Interface("panic", v).Str("source", req.SourceFilename).Msg("subtitle conversion panicked")
			span.SetStatus(codes.Error, "panic")
			result = domain.Recovered(v)
		}
	}()

	success, err := c.convert(ctx, req)
	if err != nil {
		failure := domain.FailureFrom(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(failure.Kind))
		c.logger.Warn().
			Str("kind", string(failure.Kind)).
			Str("source", req.SourceFilename).
			Str("target", req.TargetFormat).
			Msg(failure.Message)
		return domain.Result{Failure: failure}
	}

	c.logger.Info().
		Str("source", req.SourceFilename).
		Str("output", success.OutputPath).
		Str("original_size", humanize.IBytes(uint64(success.OriginalSize))).
		Str("converted_size", humanize.IBytes(uint64(success.ConvertedSize))).
		Msg("subtitle converted")
	return domain.Succeeded(success)
}

func (c *Converter) convert(ctx context.Context, req domain.SubtitleRequest) (domain.Success, error) {
	if err := req.Validate(); err != nil {
		return domain.Success{}, err
	}
	target, _ := domain.ParseSubtitleFormat(req.TargetFormat)

	sourceToken := artifact.SourceToken(req.SourceFilename)
	source, ok := domain.ParseSubtitleFormat(sourceToken)
	if !ok {
		return domain.Success{}, domain.Errorf(domain.KindUnsupportedFormat, "unsupported source format: %q", sourceToken)
	}

	src, err := c.fetcher.Fetch(ctx, req.SourcePath)
	if err != nil {
		return domain.Success{}, err
	}

	text, charset, err := decodeText(src.Data, req.ResolvedEncoding())
	if err != nil {
		return domain.Success{}, err
	}
	c.logger.Debug().Str("source", req.SourceFilename).Str("encoding", charset).Msg("decoded subtitle text")

	track, err := Parse(source, text)
	if err != nil {
		return domain.Success{}, err
	}

	var out string
	if sameFamily(source, target) && source != domain.SubtitleSRT {
		// VTT and ASS/SSA re-saves keep the source text verbatim.
		out = text
	} else {
		out, err = Render(target, track)
		if err != nil {
			return domain.Success{}, err
		}
	}

	written, err := c.emitter.Emit(ctx, src.Dir(), artifact.OutputName(req.SourceFilename, req.TargetFormat), []byte(out))
	if err != nil {
		return domain.Success{}, err
	}

	return domain.Success{
		OutputPath:    written.Path,
		OriginalSize:  src.Size,
		ConvertedSize: written.Bytes,
		Format:        target.String(),
	}, nil
}

func sameFamily(a, b domain.SubtitleFormat) bool {
	if a.IsASSFamily() && b.IsASSFamily() {
		return true
	}
	return a == b
}
