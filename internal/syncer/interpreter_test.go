package syncer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirgate/dirgate/internal/domain"
	"github.com/dirgate/dirgate/internal/syncer"
)

func TestRecognizeSingleUser(t *testing.T) {
	body := []byte(`{
		"kind": "admin#directory#user",
		"id": "103915",
		"primaryEmail": "mina@example.com",
		"name": {"fullName": "Mina Okafor"},
		"suspended": false
	}`)

	ents, err := syncer.Recognize(body)
	require.NoError(t, err)
	require.Len(t, ents, 1)
	assert.Equal(t, domain.EntityUser, ents[0].Type)
	assert.Equal(t, "103915", ents[0].UpstreamID)
	assert.Equal(t, "mina@example.com", ents[0].Attributes["primaryEmail"])
}

func TestRecognizeUserListEnvelope(t *testing.T) {
	body := []byte(`{
		"kind": "admin#directory#users",
		"users": [
			{"id": "1", "primaryEmail": "a@example.com"},
			{"id": "2", "primaryEmail": "b@example.com"},
			{"id": "3", "primaryEmail": "c@example.com"}
		],
		"nextPageToken": "tok"
	}`)

	ents, err := syncer.Recognize(body)
	require.NoError(t, err)
	require.Len(t, ents, 3)
	for _, e := range ents {
		assert.Equal(t, domain.EntityUser, e.Type)
	}
	assert.Equal(t, "2", ents[1].UpstreamID)
}

func TestRecognizeGroup(t *testing.T) {
	body := []byte(`{
		"id": "grp-77",
		"email": "eng@example.com",
		"name": "Engineering",
		"directMembersCount": "12"
	}`)

	ents, err := syncer.Recognize(body)
	require.NoError(t, err)
	require.Len(t, ents, 1)
	assert.Equal(t, domain.EntityGroup, ents[0].Type)
	assert.Equal(t, "grp-77", ents[0].UpstreamID)
}

func TestRecognizeOrgUnit(t *testing.T) {
	t.Run("with id", func(t *testing.T) {
		body := []byte(`{"name": "Sales", "orgUnitPath": "/Sales", "orgUnitId": "id:ou-9"}`)
		ents, err := syncer.Recognize(body)
		require.NoError(t, err)
		require.Len(t, ents, 1)
		assert.Equal(t, domain.EntityOrgUnit, ents[0].Type)
		assert.Equal(t, "id:ou-9", ents[0].UpstreamID)
	})

	t.Run("falls back to path", func(t *testing.T) {
		body := []byte(`{"name": "Sales", "orgUnitPath": "/Sales"}`)
		ents, err := syncer.Recognize(body)
		require.NoError(t, err)
		require.Len(t, ents, 1)
		assert.Equal(t, "/Sales", ents[0].UpstreamID)
	})
}

func TestRecognizeMembershipEnvelope(t *testing.T) {
	body := []byte(`{
		"kind": "admin#directory#members",
		"members": [
			{"id": "1", "email": "a@example.com", "role": "MEMBER", "type": "USER"},
			{"email": "b@example.com", "role": "OWNER", "type": "USER"}
		]
	}`)

	ents, err := syncer.Recognize(body)
	require.NoError(t, err)
	require.Len(t, ents, 2)
	assert.Equal(t, domain.EntityMembership, ents[0].Type)
	assert.Equal(t, "1", ents[0].UpstreamID)
	assert.Equal(t, "b@example.com", ents[1].UpstreamID, "membership without id falls back to email")
}

func TestRecognizeUserBeatsGroupShape(t *testing.T) {
	// Carries every group field too; primaryEmail+id decides.
	body := []byte(`{"id": "9", "primaryEmail": "x@example.com", "email": "x@example.com", "name": "X"}`)

	ents, err := syncer.Recognize(body)
	require.NoError(t, err)
	require.Len(t, ents, 1)
	assert.Equal(t, domain.EntityUser, ents[0].Type)
}

func TestRecognizeNothing(t *testing.T) {
	for name, body := range map[string]string{
		"settings object": `{"changePasswordAtNextLogin": true, "locale": "en"}`,
		"partial user":    `{"primaryEmail": "a@example.com"}`,
		"scalar":          `42`,
		"empty object":    `{}`,
		"empty list":      `{"users": []}`,
	} {
		t.Run(name, func(t *testing.T) {
			ents, err := syncer.Recognize([]byte(body))
			require.NoError(t, err)
			assert.Empty(t, ents)
		})
	}
}

func TestRecognizeInvalidJSON(t *testing.T) {
	_, err := syncer.Recognize([]byte(`{"users": [`))
	assert.Error(t, err)
}

func TestRecognizeItemsEnvelope(t *testing.T) {
	body := []byte(`{"items": [{"id": "5", "primaryEmail": "e@example.com"}]}`)

	ents, err := syncer.Recognize(body)
	require.NoError(t, err)
	require.Len(t, ents, 1)
	assert.Equal(t, "5", ents[0].UpstreamID)
}
