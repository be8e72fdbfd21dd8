package admin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveSourceQueueName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "orders-dlq", want: "orders"},
		{input: "DLQ-orders", want: "orders"},
		{input: "Orders-DLQ", want: "Orders"},
		{input: "dlq-orders-dlq", want: "orders"},
		{input: "mailflow-app1-dev-dlq", want: "mailflow-app1-dev"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := DeriveSourceQueueName(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeriveSourceQueueName_Errors(t *testing.T) {
	for _, input := range []string{"orders", "mailflow-dlq-dev", "", "-dlq", "dlq-", "ordersdlq"} {
		t.Run(input, func(t *testing.T) {
			_, err := DeriveSourceQueueName(input)
			assert.ErrorIs(t, err, ErrNamingConvention)
			assert.Equal(t, KindNamingConvention, Classify(err))
		})
	}
}
