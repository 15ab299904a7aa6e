package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"batchfetch/internal/model"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.Database.validate(result)
	c.Batch.validate(result)
	c.Demo.validate(result, c.Batch)
	c.Observability.validate(result)

	return result
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	if _, err := d.Dialect(); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.driver",
			Message: err.Error(),
			Hint:    "valid values are: mysql, pgx",
		})
	}

	// Port range validation (only if not using connection string)
	if d.ConnectionString == "" && (d.Port < 0 || d.Port > 65535) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.port",
			Message: fmt.Sprintf("port %d is out of valid range (1-65535)", d.Port),
			Hint:    "use 0 for the driver default",
		})
	}

	if d.Pool.MaxOpen < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.pool.max_open",
			Message: "max_open cannot be negative",
		})
	}
	if d.Pool.MaxIdle < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.pool.max_idle",
			Message: "max_idle cannot be negative",
		})
	}
	if d.Pool.MaxIdle > d.Pool.MaxOpen && d.Pool.MaxOpen > 0 {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "database.pool.max_idle",
			Message: "max_idle is greater than max_open",
			Hint:    "idle connections will be limited to max_open",
		})
	}

	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval > d.ConnectionTimeout {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "database.connection_retry_interval",
			Message: "connection_retry_interval is greater than connection_timeout",
			Hint:    "only one connection attempt will be made",
		})
	}
	if d.ConnectionRetryInterval < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.connection_retry_interval",
			Message: "connection_retry_interval cannot be negative",
		})
	}
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval == 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.connection_retry_interval",
			Message: "connection_retry_interval must be greater than 0 when connection_timeout is set",
			Hint:    "set a retry interval such as 2s, or set connection_timeout to 0 to disable retries",
		})
	}
	if d.ConnectionTimeout < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.connection_timeout",
			Message: "connection_timeout cannot be negative",
		})
	}

	name, err := d.DatabaseName()
	if err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.dsn",
			Message: err.Error(),
			Hint:    "set a valid DSN for the configured driver in database.dsn/database.dsn_file",
		})
		return
	}
	if name == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.database",
			Message: "no database name configured",
			Hint:    "set database.database or include a /database in database.dsn",
		})
	}
}

func (b *BatchConfig) validate(result *ValidationResult) {
	if b.ChunkSize <= 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "batch.chunk_size",
			Message: fmt.Sprintf("chunk_size must be greater than 0, got %d", b.ChunkSize),
		})
	}
	if b.MaxDepth < 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "batch.max_depth",
			Message: fmt.Sprintf("max_depth must be at least 1, got %d", b.MaxDepth),
			Hint:    "1 batches only the first collection level below a load",
		})
	}
}

func (d *DemoConfig) validate(result *ValidationResult, batch BatchConfig) {
	positive := []struct {
		field string
		value int
	}{
		{"demo.parents", d.Parents},
		{"demo.children_per_parent", d.ChildrenPerParent},
		{"demo.rounds", d.Rounds},
		{"demo.batch_size", d.BatchSize},
	}
	for _, p := range positive {
		if p.value <= 0 {
			result.Errors = append(result.Errors, ValidationError{
				Field:   p.field,
				Message: fmt.Sprintf("must be greater than 0, got %d", p.value),
			})
		}
	}
	if d.TagsPerChild < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "demo.tags_per_child",
			Message: "tags_per_child cannot be negative",
		})
	}

	path := strings.TrimSpace(d.BatchPath)
	if path == "" {
		return
	}
	if depth := len(model.SplitPath(path)); depth > batch.MaxDepth && batch.MaxDepth > 0 {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "demo.batch_path",
			Message: fmt.Sprintf("path %q is %d levels deep but batch.max_depth is %d", path, depth, batch.MaxDepth),
			Hint:    "levels past max_depth load one owner at a time",
		})
	}
	if d.TagsPerChild == 0 && strings.HasSuffix(path, ".tags") {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "demo.batch_path",
			Message: "tags are batched but demo.tags_per_child is 0",
			Hint:    "every tag collection will resolve empty",
		})
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.level",
			Message: fmt.Sprintf("invalid log level %q", o.Logging.Level),
			Hint:    "valid values are: debug, info, warn, error",
		})
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.format",
			Message: fmt.Sprintf("invalid log format %q", o.Logging.Format),
			Hint:    "valid values are: json, text",
		})
	}

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.trace_sample_ratio",
			Message: fmt.Sprintf("trace_sample_ratio %v is outside [0, 1]", o.TraceSampleRatio),
		})
	}

	if o.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(o.MetricsAddr); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "observability.metrics_addr",
				Message: fmt.Sprintf("invalid listen address %q: %v", o.MetricsAddr, err),
				Hint:    "use host:port or :port",
			})
		}
		if !o.MetricsEnabled {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Field:   "observability.metrics_addr",
				Message: "metrics_addr is set but metrics are disabled",
				Hint:    "set observability.metrics_enabled to true",
			})
		}
	}

	o.OTLP.validate("observability.otlp", result)
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".protocol",
			Message: fmt.Sprintf("invalid OTLP protocol %q", o.Protocol),
			Hint:    "valid values are: grpc, http/protobuf",
		})
	}

	if o.Protocol == "http/protobuf" {
		if !validOTLPEndpoint(o.Endpoint) {
			result.Errors = append(result.Errors, ValidationError{
				Field:   prefix + ".endpoint",
				Message: fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint),
				Hint:    "use host:port or a full URL",
			})
		}
	}

	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".compression",
			Message: fmt.Sprintf("invalid OTLP compression %q", o.Compression),
			Hint:    "valid values are: none, gzip",
		})
	}

	if o.RetryMaxAttempts < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".retry_max_attempts",
			Message: "retry_max_attempts cannot be negative",
		})
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
