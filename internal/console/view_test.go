package console

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"lablog-console/internal/model"
)

func TestResolve(t *testing.T) {
	sess := &model.Session{Token: "t1", LastPage: "labs"}

	testCases := []struct {
		name         string
		sess         *model.Session
		requested    View
		hasSelection bool
		want         View
	}{
		{"signed out goes to login", nil, ViewDashboard, false, ViewAuth},
		{"signed out admin goes to login", nil, ViewAdmin, true, ViewAuth},
		{"login while signed in", sess, ViewAuth, false, ViewDashboard},
		{"set without selection", sess, ViewSet, false, ViewLabs},
		{"set with selection", sess, ViewSet, true, ViewSet},
		{"labs", sess, ViewLabs, false, ViewLabs},
		{"admin is not gated here", sess, ViewAdmin, false, ViewAdmin},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Resolve(tc.sess, tc.requested, tc.hasSelection))
		})
	}
}

func TestLanding(t *testing.T) {
	assert.Equal(t, ViewAuth, Landing(nil, false))
	assert.Equal(t, ViewLabs, Landing(&model.Session{LastPage: "labs"}, false))
	assert.Equal(t, ViewLabs, Landing(&model.Session{LastPage: "set"}, false))
	assert.Equal(t, ViewSet, Landing(&model.Session{LastPage: "set"}, true))
	assert.Equal(t, ViewDashboard, Landing(&model.Session{LastPage: ""}, false))
	assert.Equal(t, ViewDashboard, Landing(&model.Session{LastPage: "nowhere"}, false))
}

func TestViewPath(t *testing.T) {
	assert.Equal(t, "/login", ViewAuth.Path())
	assert.Equal(t, "/set", ViewSet.Path())
	assert.Equal(t, "/dashboard", View("bogus").Path())
}
