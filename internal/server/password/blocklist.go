package password

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectGetter is the part of the S3 client used to fetch blocklists.
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// LoadBlocklist reads patterns from a local path or an s3://bucket/key URL.
// Blank lines and lines starting with '#' are skipped; every pattern is
// matched case-insensitively.
func LoadBlocklist(ctx context.Context, source string, s3c ObjectGetter) ([]*regexp.Regexp, error) {
	if source == "" {
		return nil, nil
	}

	var r io.ReadCloser
	if rest, ok := strings.CutPrefix(source, "s3://"); ok {
		bucket, key, found := strings.Cut(rest, "/")
		if !found || bucket == "" || key == "" {
			return nil, fmt.Errorf("invalid blocklist url %q", source)
		}
		if s3c == nil {
			return nil, fmt.Errorf("blocklist %q needs an S3 client", source)
		}
		out, err := s3c.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
		if err != nil {
			return nil, fmt.Errorf("fetch blocklist: %w", err)
		}
		r = out.Body
	} else {
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("open blocklist: %w", err)
		}
		r = f
	}
	defer r.Close()

	return ParseBlocklist(r)
}

// ParseBlocklist compiles one pattern per line.
func ParseBlocklist(r io.Reader) ([]*regexp.Regexp, error) {
	var out []*regexp.Regexp
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		p := strings.TrimSpace(sc.Text())
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("blocklist line %d: %w", line, err)
		}
		out = append(out, re)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
