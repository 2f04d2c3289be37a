package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAccessGrade(t *testing.T) {
	for _, valid := range []string{"full", "restricted", "manual_review"} {
		g, err := ParseAccessGrade(valid)
		require.NoError(t, err)
		assert.Equal(t, valid, g.String())
	}

	for _, invalid := range []string{"", "admin", "FULL", "root"} {
		_, err := ParseAccessGrade(invalid)
		require.Error(t, err, "grade %q must be rejected", invalid)
	}
}

func TestAccessGrade_AtLeast(t *testing.T) {
	assert.True(t, GradeFull.AtLeast(GradeRestricted))
	assert.True(t, GradeFull.AtLeast(GradeFull))
	assert.True(t, GradeRestricted.AtLeast(GradeManual))
	assert.False(t, GradeManual.AtLeast(GradeRestricted))
	assert.False(t, GradeRestricted.AtLeast(GradeFull))

	// Unknown grades compare below every known grade.
	assert.False(t, AccessGrade("root").AtLeast(GradeManual))
	assert.True(t, GradeManual.AtLeast(AccessGrade("root")))
}
