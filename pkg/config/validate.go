package config

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationError represents a single configuration validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return "validation errors:\n  - " + strings.Join(msgs, "\n  - ")
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

const maxIdentifierLength = 32

func validateIdentifier(id, field string) *ValidationError {
	if id == "" {
		return &ValidationError{field, "is required"}
	}
	if len(id) > maxIdentifierLength {
		return &ValidationError{field, fmt.Sprintf("must be at most %d characters", maxIdentifierLength)}
	}
	if strings.ToLower(id) != id {
		return &ValidationError{field, "must be lowercase"}
	}
	if !identifierPattern.MatchString(id) {
		return &ValidationError{field, "must match [A-Za-z0-9_-]+"}
	}
	return nil
}

// ValidateAgents checks an agents snapshot for structural errors.
func ValidateAgents(c *AgentsConfig) error {
	var errs ValidationErrors

	if len(c.Agents) == 0 {
		errs = append(errs, ValidationError{"agents", "at least one agent is required"})
	}

	seen := make(map[string]bool)
	for i, a := range c.Agents {
		prefix := fmt.Sprintf("agents[%d]", i)

		if ve := validateIdentifier(a.Identifier, prefix+".identifier"); ve != nil {
			errs = append(errs, *ve)
		} else if seen[a.Identifier] {
			errs = append(errs, ValidationError{prefix + ".identifier", fmt.Sprintf("duplicate identifier %q", a.Identifier)})
		} else {
			seen[a.Identifier] = true
		}

		if a.Name == "" {
			errs = append(errs, ValidationError{prefix + ".name", "is required"})
		}

		switch a.Transport {
		case TransportHTTP:
			if a.HTTP == nil || a.HTTP.URL == "" {
				errs = append(errs, ValidationError{prefix + ".http.url", "is required for transport http"})
			}
		case TransportSSE:
			// SSE agents connect inbound; nothing further to require.
		case TransportStdio:
			if a.Stdio == nil || len(a.Stdio.Command) == 0 {
				errs = append(errs, ValidationError{prefix + ".stdio.command", "is required for transport stdio"})
			}
		case TransportDirect:
			if a.Direct == nil || a.Direct.Provider == "" {
				errs = append(errs, ValidationError{prefix + ".direct.provider", "is required for transport direct"})
			}
		default:
			errs = append(errs, ValidationError{prefix + ".transport", "must be one of http, sse, stdio, direct"})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidateProviders checks a providers snapshot for structural errors.
func ValidateProviders(c *ProvidersConfig) error {
	var errs ValidationErrors

	seen := make(map[string]bool)
	for i, s := range c.McpServers {
		prefix := fmt.Sprintf("mcpServers[%d]", i)
		if ve := validateIdentifier(s.Identifier, prefix+".identifier"); ve != nil {
			errs = append(errs, *ve)
		} else if seen[s.Identifier] {
			errs = append(errs, ValidationError{prefix + ".identifier", fmt.Sprintf("duplicate identifier %q", s.Identifier)})
		} else {
			seen[s.Identifier] = true
		}

		switch s.Transport {
		case "http", "sse":
			if s.URL == "" {
				errs = append(errs, ValidationError{prefix + ".url", "is required for transport " + s.Transport})
			}
		case "stdio":
			if len(s.Command) == 0 {
				errs = append(errs, ValidationError{prefix + ".command", "is required for transport stdio"})
			}
		default:
			errs = append(errs, ValidationError{prefix + ".transport", "must be one of http, sse, stdio"})
		}
	}

	for i, s := range c.RestServers {
		prefix := fmt.Sprintf("restServers[%d]", i)
		if ve := validateIdentifier(s.Identifier, prefix+".identifier"); ve != nil {
			errs = append(errs, *ve)
		} else if seen[s.Identifier] {
			errs = append(errs, ValidationError{prefix + ".identifier", fmt.Sprintf("duplicate identifier %q", s.Identifier)})
		} else {
			seen[s.Identifier] = true
		}

		if s.BaseURL == "" {
			errs = append(errs, ValidationError{prefix + ".baseUrl", "is required"})
		}

		endpointNames := make(map[string]bool)
		validMethods := map[string]bool{"GET": true, "POST": true, "PUT": true, "DELETE": true, "PATCH": true}
		for j, e := range s.Endpoints {
			ePrefix := fmt.Sprintf("%s.endpoints[%d]", prefix, j)
			if e.Name == "" {
				errs = append(errs, ValidationError{ePrefix + ".name", "is required"})
			} else if endpointNames[e.Name] {
				errs = append(errs, ValidationError{ePrefix + ".name", fmt.Sprintf("duplicate endpoint name %q", e.Name)})
			} else {
				endpointNames[e.Name] = true
			}
			if !validMethods[e.Method] {
				errs = append(errs, ValidationError{ePrefix + ".method", "must be one of GET, POST, PUT, DELETE, PATCH"})
			}
			if e.Path == "" {
				errs = append(errs, ValidationError{ePrefix + ".path", "is required"})
			}
			for k, tr := range e.Transforms {
				trPrefix := fmt.Sprintf("%s.transforms[%d]", ePrefix, k)
				switch tr.Transform {
				case "remove", "map", "date_format", "template", "regex_replace":
				default:
					errs = append(errs, ValidationError{trPrefix + ".transform", "must be one of remove, map, date_format, template, regex_replace"})
				}
				if tr.Path == "" {
					errs = append(errs, ValidationError{trPrefix + ".path", "is required"})
				}
			}
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
