package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a manifest document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

const (
	builtinScheme = "builtin:"
	s3Scheme      = "s3://"
)

// S3Options configure the client used for s3:// references.
type S3Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Secure    bool
}

// SourceOptions tune how a manifest reference is resolved and decoded.
type SourceOptions struct {
	S3 *S3Options
	// DisableEnvExpansion leaves ${VAR} references untouched.
	DisableEnvExpansion bool
	// Lookup resolves environment variables. Defaults to os.LookupEnv.
	Lookup func(string) (string, bool)
}

func (o *SourceOptions) lookup() func(string) (string, bool) {
	if o != nil && o.Lookup != nil {
		return o.Lookup
	}
	return os.LookupEnv
}

// Open resolves a manifest reference, decodes it and validates it. A reference is
// builtin:<name>, s3://bucket/key or a filesystem path. A .gz or .zst suffix selects
// decompression and a .json suffix selects JSON, YAML otherwise.
func Open(ctx context.Context, ref string, opts *SourceOptions) (*Manifest, error) {
	if opts == nil {
		opts = &SourceOptions{}
	}

	raw, name, err := fetch(ctx, ref, opts)
	if err != nil {
		return nil, err
	}

	data, format, err := decompress(raw, name)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", ref, err)
	}

	m, err := Decode(data, format, opts)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", ref, err)
	}
	return m, nil
}

// Decode parses and validates a manifest document.
func Decode(data []byte, format Format, opts *SourceOptions) (*Manifest, error) {
	if opts == nil || !opts.DisableEnvExpansion {
		expanded, err := ExpandEnv(string(data), opts.lookup())
		if err != nil {
			return nil, err
		}
		data = []byte(expanded)
	}

	var m Manifest
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to decode JSON manifest: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to decode YAML manifest: %w", err)
		}
	}

	for _, spec := range m.Collections() {
		spec.Validator.Normalize()
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Load reads a manifest from r.
func Load(r io.Reader, format Format, opts *SourceOptions) (*Manifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Decode(data, format, opts)
}

func fetch(ctx context.Context, ref string, opts *SourceOptions) ([]byte, string, error) {
	switch {
	case strings.HasPrefix(ref, builtinScheme):
		name := strings.TrimPrefix(ref, builtinScheme)
		data, err := ReadBuiltin(name)
		if err != nil {
			return nil, "", err
		}
		return data, name + ".yaml", nil
	case strings.HasPrefix(ref, s3Scheme):
		data, err := fetchS3(ctx, strings.TrimPrefix(ref, s3Scheme), opts.S3)
		if err != nil {
			return nil, "", fmt.Errorf("failed to fetch manifest %s: %w", ref, err)
		}
		return data, ref, nil
	}

	data, err := os.ReadFile(ref)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read manifest: %w", err)
	}
	return data, ref, nil
}

func fetchS3(ctx context.Context, location string, opts *S3Options) ([]byte, error) {
	bucket, key, ok := strings.Cut(location, "/")
	if !ok || bucket == "" || key == "" {
		return nil, fmt.Errorf("s3 reference must be s3://bucket/key")
	}
	if opts == nil || opts.Endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is not configured")
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.Secure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}

	obj, err := client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
			return nil, fmt.Errorf("object %s not found in bucket %s", key, bucket)
		}
		return nil, err
	}
	return data, nil
}

// decompress strips a compression suffix from name and returns the plain document
// with the format its remaining extension implies.
func decompress(data []byte, name string) ([]byte, Format, error) {
	switch path.Ext(name) {
	case ".gz":
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, "", fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer zr.Close()
		plain, err := io.ReadAll(zr)
		if err != nil {
			return nil, "", fmt.Errorf("failed to decompress gzip stream: %w", err)
		}
		return plain, formatOf(strings.TrimSuffix(name, ".gz")), nil
	case ".zst":
		zr, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, "", fmt.Errorf("failed to open zstd stream: %w", err)
		}
		defer zr.Close()
		plain, err := io.ReadAll(zr)
		if err != nil {
			return nil, "", fmt.Errorf("failed to decompress zstd stream: %w", err)
		}
		return plain, formatOf(strings.TrimSuffix(name, ".zst")), nil
	}
	return data, formatOf(name), nil
}

func formatOf(name string) Format {
	if strings.EqualFold(path.Ext(name), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} references. A variable that is
// unset or empty takes its default. Referencing an unset variable without a
// default is an error.
func ExpandEnv(s string, lookup func(string) (string, bool)) (string, error) {
	missing := make(map[string]struct{})
	out := envPattern.ReplaceAllStringFunc(s, func(ref string) string {
		groups := envPattern.FindStringSubmatch(ref)
		name, hasDefault := groups[1], strings.Contains(ref, ":-")
		value, ok := lookup(name)
		if ok && value != "" {
			return value
		}
		if hasDefault {
			return groups[2]
		}
		if !ok {
			missing[name] = struct{}{}
		}
		return value
	})

	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for name := range missing {
			names = append(names, name)
		}
		sort.Strings(names)
		return "", fmt.Errorf("undefined environment variables without default: %s", strings.Join(names, ", "))
	}
	return out, nil
}
