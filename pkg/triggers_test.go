package merger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTriggerPattern(t *testing.T) {
	primary, secondary := syntheticRun()
	pattern := mustPattern(t, primary, secondary)

	assert.Equal(t, 100, pattern.PrimaryEvents)
	assert.Equal(t, 91, pattern.SecondaryIDs)
	assert.Equal(t, []int{10, 20, 30, 40, 50, 60, 70, 80, 90}, pattern.Pedestals)
	assert.Equal(t, []int{7, 17, 27, 37, 47, 57, 67, 77, 87}, pattern.Complement)
	assert.True(t, pattern.InComplement(47))
	assert.False(t, pattern.InComplement(50))
	assert.False(t, pattern.InComplement(-3))
}

func TestExtractTriggerPatternIgnoresIdsOutsidePrimaryRange(t *testing.T) {
	primary := buildPrimary(5, []int{2})
	secondary := NewSecondaryTable([]SecondaryRecord{
		secondaryRecord(0, 0, 1, 0),
		secondaryRecord(0, 1, 1, 0),
		secondaryRecord(3, 0, 1, 0),
		secondaryRecord(40, 0, 1, 0),
	})
	pattern := mustPattern(t, primary, secondary)

	assert.Equal(t, 3, pattern.SecondaryIDs)
	assert.Equal(t, []int{1, 2, 4}, pattern.Complement)
}

func TestExtractTriggerPatternEmptyStreams(t *testing.T) {
	primary, secondary := syntheticRun()

	_, err := ExtractTriggerPattern(NewPrimaryTable(nil), secondary, PEDESTAL_TRIGGER_MASK)
	var empty *ErrEmptyStream
	require.True(t, errors.As(err, &empty))
	assert.Equal(t, "primary", empty.Stream)

	_, err = ExtractTriggerPattern(primary, NewSecondaryTable(nil), PEDESTAL_TRIGGER_MASK)
	require.True(t, errors.As(err, &empty))
	assert.Equal(t, "secondary", empty.Stream)
}
