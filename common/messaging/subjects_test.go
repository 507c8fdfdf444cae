package messaging

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubjects_NamingConvention(t *testing.T) {
	subjects := []string{
		SubjectSecurityEvents,
		SubjectAlertsRaised,
		SubjectAlertsEscalated,
		SubjectIncidentsCreated,
		SubjectIncidentsResolved,
		SubjectActionsBlock,
	}

	seen := make(map[string]bool)
	for _, s := range subjects {
		parts := strings.Split(s, ".")
		assert.Len(t, parts, 3, s)
		assert.Equal(t, "sentinel", parts[0], s)
		assert.False(t, seen[s], "duplicate subject %s", s)
		seen[s] = true
	}
}
