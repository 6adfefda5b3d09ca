package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"healthwatch/internal/errs"
	"healthwatch/internal/models"
)

// File mirrors the configuration document. Durations are strings in
// the <number>ms|s|m grammar; every string value may contain ${NAME}
// environment placeholders.
type File struct {
	Interval       string            `yaml:"interval"`
	Timeout        string            `yaml:"timeout"`
	Retries        *int              `yaml:"retries"`
	Concurrency    *int              `yaml:"concurrency"`
	DefaultHeaders map[string]string `yaml:"default_headers"`
	Headers        map[string]string `yaml:"headers"`
	Proxy          string            `yaml:"proxy"`
	Insecure       bool              `yaml:"insecure"`
	Services       []ServiceEntry    `yaml:"services"`
}

// ServiceEntry is one service definition in the file.
type ServiceEntry struct {
	Name         string            `yaml:"name"`
	URL          string            `yaml:"url"`
	ExpectStatus string            `yaml:"expect_status"`
	Tags         []string          `yaml:"tags"`
	Headers      map[string]string `yaml:"headers"`
	Proxy        string            `yaml:"proxy"`
	Timeout      string            `yaml:"timeout"`
}

// Config is the validated result of loading a file: process defaults
// (zero values mean "not set") plus the service fleet.
type Config struct {
	Interval    time.Duration
	Timeout     time.Duration
	Retries     *int
	Concurrency *int
	Headers     map[string]string
	Proxy       string
	Insecure    bool
	Services    []models.Service
}

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and validates the configuration file. All problems are
// collected and reported together as a usage error with
// JSON-pointer-style paths.
func Load(path string) (Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errs.Usagef("read config %s: %v", path, err)
	}
	return Parse(content, os.LookupEnv)
}

// Parse validates raw configuration bytes. lookupEnv resolves ${NAME}
// placeholders; pass os.LookupEnv outside tests.
func Parse(content []byte, lookupEnv func(string) (string, bool)) (Config, error) {
	var file File
	if err := yaml.Unmarshal(content, &file); err != nil {
		return Config{}, errs.Usagef("parse config: %v", err)
	}

	v := &validator{lookupEnv: lookupEnv}
	cfg := v.build(&file)
	if len(v.issues) > 0 {
		sort.Strings(v.issues)
		return Config{}, &errs.UsageError{Msg: "invalid configuration:\n  " + strings.Join(v.issues, "\n  ")}
	}
	return cfg, nil
}

type validator struct {
	lookupEnv func(string) (string, bool)
	issues    []string
}

func (v *validator) addf(path, format string, args ...any) {
	v.issues = append(v.issues, path+": "+fmt.Sprintf(format, args...))
}

// expand substitutes ${NAME} placeholders in s. Unresolved
// placeholders are validation issues.
func (v *validator) expand(path, s string) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if v.lookupEnv != nil {
			if value, ok := v.lookupEnv(name); ok {
				return value
			}
		}
		v.addf(path, "unresolved environment placeholder %s", match)
		return match
	})
}

func (v *validator) expandHeaders(path string, headers map[string]string) map[string]string {
	if headers == nil {
		return nil
	}
	out := make(map[string]string, len(headers))
	for name, value := range headers {
		if strings.TrimSpace(name) == "" {
			v.addf(path, "empty header name")
			continue
		}
		out[name] = v.expand(path+"/"+name, value)
	}
	return out
}

func (v *validator) duration(path, raw string) time.Duration {
	if raw == "" {
		return 0
	}
	d, err := models.ParseDuration(v.expand(path, raw))
	if err != nil {
		v.addf(path, "%v", err)
		return 0
	}
	return d
}

func (v *validator) build(file *File) Config {
	cfg := Config{
		Interval:    v.duration("/interval", file.Interval),
		Timeout:     v.duration("/timeout", file.Timeout),
		Retries:     file.Retries,
		Concurrency: file.Concurrency,
		Proxy:       v.expand("/proxy", file.Proxy),
		Insecure:    file.Insecure,
	}

	if file.Retries != nil && *file.Retries < 0 {
		v.addf("/retries", "must be >= 0, got %d", *file.Retries)
	}
	if file.Concurrency != nil && *file.Concurrency < 1 {
		v.addf("/concurrency", "must be >= 1, got %d", *file.Concurrency)
	}

	// default_headers and headers are synonyms; headers wins on clash.
	merged := v.expandHeaders("/default_headers", file.DefaultHeaders)
	for name, value := range v.expandHeaders("/headers", file.Headers) {
		if merged == nil {
			merged = make(map[string]string)
		}
		merged[name] = value
	}
	cfg.Headers = merged

	if len(file.Services) == 0 {
		v.addf("/services", "at least one service is required")
	}

	seen := make(map[string]bool, len(file.Services))
	for i, entry := range file.Services {
		base := fmt.Sprintf("/services/%d", i)

		name := v.expand(base+"/name", entry.Name)
		if name == "" {
			v.addf(base+"/name", "name is required")
		} else if seen[name] {
			v.addf(base+"/name", "duplicate service name %q", name)
		}
		seen[name] = true

		rawURL := v.expand(base+"/url", entry.URL)
		if rawURL == "" {
			v.addf(base+"/url", "url is required")
		} else if u, err := url.Parse(rawURL); err != nil {
			v.addf(base+"/url", "invalid url: %v", err)
		} else if u.Scheme != "http" && u.Scheme != "https" {
			v.addf(base+"/url", "url must be absolute http or https, got %q", rawURL)
		} else if u.Host == "" {
			v.addf(base+"/url", "url must be absolute, got %q", rawURL)
		}

		expect := v.expand(base+"/expect_status", entry.ExpectStatus)
		if expect != "" {
			if _, ok := models.ParseStatus(expect); !ok {
				v.addf(base+"/expect_status", "must be one of ok, degraded, down; got %q", expect)
			}
		}

		svc := models.Service{
			Name:         name,
			URL:          rawURL,
			ExpectStatus: expect,
			Headers:      v.expandHeaders(base+"/headers", entry.Headers),
			Proxy:        v.expand(base+"/proxy", entry.Proxy),
			Timeout:      v.duration(base+"/timeout", entry.Timeout),
		}
		for j, tag := range entry.Tags {
			svc.Tags = append(svc.Tags, v.expand(fmt.Sprintf("%s/tags/%d", base, j), tag))
		}
		cfg.Services = append(cfg.Services, svc)
	}
	return cfg
}
