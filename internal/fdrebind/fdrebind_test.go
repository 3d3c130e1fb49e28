package fdrebind

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromToEnableChaosGoesShadowToOriginal(t *testing.T) {
	r := &Replacer{originalPath: "/mnt/target", shadowPath: "/mnt/__chaosfs__target__", direction: EnableChaos}
	from, to := r.fromTo()
	assert.Equal(t, "/mnt/__chaosfs__target__", from)
	assert.Equal(t, "/mnt/target", to)
}

func TestFromToDisableChaosGoesOriginalToShadow(t *testing.T) {
	r := &Replacer{originalPath: "/mnt/target", shadowPath: "/mnt/__chaosfs__target__", direction: DisableChaos}
	from, to := r.fromTo()
	assert.Equal(t, "/mnt/target", from)
	assert.Equal(t, "/mnt/__chaosfs__target__", to)
}

func TestDirectionTargetMatchesFromToDestination(t *testing.T) {
	r := &Replacer{originalPath: "/mnt/target", shadowPath: "/mnt/__chaosfs__target__", direction: EnableChaos}
	assert.Equal(t, "/mnt/target", r.directionTarget())
}
