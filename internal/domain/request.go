package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultQuality = 90
	EncodingAuto   = "auto"
	MinQuality     = 1
	MaxQuality     = 100
)

// ImageRequest asks for one image conversion. Width and Height are optional;
// zero means "not given".
type ImageRequest struct {
	SourcePath     string `json:"source_path" validate:"required"`
	SourceFilename string `json:"source_filename" validate:"required"`
	TargetFormat   string `json:"target_format" validate:"required,imageformat"`
	Width          int    `json:"width,omitempty" validate:"gte=0"`
	Height         int    `json:"height,omitempty" validate:"gte=0"`
	Quality        int    `json:"quality" validate:"gte=1,lte=100"`
}

// SubtitleRequest asks for one subtitle conversion. An empty Encoding is
// treated as EncodingAuto.
type SubtitleRequest struct {
	SourcePath     string `json:"source_path" validate:"required"`
	SourceFilename string `json:"source_filename" validate:"required"`
	TargetFormat   string `json:"target_format" validate:"required,subtitleformat"`
	Encoding       string `json:"encoding,omitempty"`
}

// NewImageRequest fills in the default quality.
func NewImageRequest(sourcePath, sourceFilename, target string) ImageRequest {
	return ImageRequest{
		SourcePath:     sourcePath,
		SourceFilename: sourceFilename,
		TargetFormat:   target,
		Quality:        DefaultQuality,
	}
}

func NewSubtitleRequest(sourcePath, sourceFilename, target string) SubtitleRequest {
	return SubtitleRequest{
		SourcePath:     sourcePath,
		SourceFilename: sourceFilename,
		TargetFormat:   target,
		Encoding:       EncodingAuto,
	}
}

func (r ImageRequest) Validate() error {
	return classifyValidation(validate.Struct(r))
}

func (r SubtitleRequest) Validate() error {
	return classifyValidation(validate.Struct(r))
}

// ResolvedEncoding returns the requested charset, or EncodingAuto.
func (r SubtitleRequest) ResolvedEncoding() string {
	enc := strings.ToLower(strings.TrimSpace(r.Encoding))
	if enc == "" {
		return EncodingAuto
	}
	return enc
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("imageformat", func(fl validator.FieldLevel) bool {
		_, ok := ParseImageFormat(fl.Field().String())
		return ok
	})
	_ = v.RegisterValidation("subtitleformat", func(fl validator.FieldLevel) bool {
		_, ok := ParseSubtitleFormat(fl.Field().String())
		return ok
	})
	return v
}

func classifyValidation(err error) error {
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return Wrap(KindInvalidParameter, err, "invalid request")
	}

	fe := fieldErrs[0]
	switch fe.Field() {
	case "source_path", "source_filename":
		return Errorf(KindMissingFile, "%s is required", fe.Field())
	case "target_format":
		if fe.Tag() == "required" {
			return Errorf(KindUnsupportedFormat, "target format is required")
		}
		return Errorf(KindUnsupportedFormat, "unsupported target format: %v", fe.Value())
	case "quality":
		return Errorf(KindInvalidParameter, "quality must be in [%d,%d], got %v", MinQuality, MaxQuality, fe.Value())
	case "width", "height":
		return Errorf(KindInvalidParameter, "%s must be a positive integer, got %v", fe.Field(), fe.Value())
	default:
		return Errorf(KindInvalidParameter, "%s failed %q validation", fe.Field(), fe.Tag())
	}
}

// Describe is used in log lines.
func (r ImageRequest) Describe() string {
	return fmt.Sprintf("%s -> %s (w=%d h=%d q=%d)", r.SourceFilename, r.TargetFormat, r.Width, r.Height, r.Quality)
}
