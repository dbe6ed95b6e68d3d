package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"nil", nil, nil},
		{"brokers", []string{" kafka-1:9092", "kafka-2:9092 ", "kafka-1:9092"}, []string{"kafka-1:9092", "kafka-2:9092"}},
		{"blanks dropped", []string{"", "  ", "a"}, []string{"a"}},
		{"case preserved", []string{"Audit", "audit"}, []string{"Audit", "audit"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DedupeAndTrim(tt.in))
		})
	}
}

func TestDedupeAndTrimLower(t *testing.T) {
	got := DedupeAndTrimLower([]string{" Security_Review", "AUDIT", "security_review", ""})
	assert.Equal(t, []string{"security_review", "audit"}, got)
}
