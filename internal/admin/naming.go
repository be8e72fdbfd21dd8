package admin

import (
	"fmt"
	"strings"
)

const (
	dlqSuffix = "-dlq"
	dlqPrefix = "dlq-"
)

// DeriveSourceQueueName recovers the source queue name of a dead-letter queue by stripping a
// "-dlq" suffix and/or a "dlq-" prefix, case-insensitively. Names following neither convention
// fail with ErrNamingConvention; callers must then refuse to guess a target.
func DeriveSourceQueueName(deadLetterQueueName string) (string, error) {
	name := deadLetterQueueName
	lower := strings.ToLower(name)
	matched := false

	if strings.HasSuffix(lower, dlqSuffix) {
		name = name[:len(name)-len(dlqSuffix)]
		lower = lower[:len(lower)-len(dlqSuffix)]
		matched = true
	}
	if strings.HasPrefix(lower, dlqPrefix) {
		name = name[len(dlqPrefix):]
		matched = true
	}

	if !matched || name == "" {
		return "", fmt.Errorf("%w: %q", ErrNamingConvention, deadLetterQueueName)
	}
	return name, nil
}
