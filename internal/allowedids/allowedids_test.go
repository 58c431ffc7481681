package allowedids

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDerive_SortsDedupesAndUnions(t *testing.T) {
	ids := Derive("d-anchor",
		[]string{"e-2", "e-1", "e-1"},
		[]string{"d-prev"},
		[]string{"d-next", "d-anchor"},
	)
	assert.Equal(t, []string{"d-anchor", "d-next", "d-prev", "e-1", "e-2"}, ids)
}

func TestDerive_DropsEmptyIDs(t *testing.T) {
	ids := Derive("", []string{"", "e-1"}, nil, nil)
	assert.Equal(t, []string{"e-1"}, ids)
}

func TestDerive_AnchorOnly(t *testing.T) {
	ids := Derive("d-anchor", nil, nil, nil)
	assert.Equal(t, []string{"d-anchor"}, ids)
}
