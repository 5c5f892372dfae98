package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDiscussionType(t *testing.T) {
	typ, err := ParseDiscussionType("GROUP_TOPIC")
	require.NoError(t, err)
	assert.Equal(t, DiscussionGroupTopic, typ)

	_, err = ParseDiscussionType("group_topic")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "type", verr.Field)
	assert.Equal(t, "group_topic", verr.Value)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Group ")
	require.NoError(t, err)
	assert.Equal(t, KindGroup, k)

	_, err = ParseKind("page")
	assert.Error(t, err)
}

func TestRef_String(t *testing.T) {
	assert.Equal(t, "user:5", Ref{Kind: KindUser, ID: 5}.String())
	assert.Equal(t, "5", Ref{ID: 5}.String())
	assert.True(t, Ref{Kind: KindGroup}.IsZero())
}

func TestAnswerRate(t *testing.T) {
	assert.InDelta(t, 25.0, AnswerRate(1, 4), 1e-9)
	assert.Zero(t, AnswerRate(3, 0))
}

func TestTransportError_Unwrap(t *testing.T) {
	cause := errors.New("reset")
	err := &TransportError{Method: "stream.get", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "call stream.get: reset", err.Error())
}
