package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/tagshelf/internal/apperr"
	"github.com/starford/tagshelf/internal/catalog"
	"github.com/starford/tagshelf/internal/testutil"
)

const catalogYAML = `
libraries:
  - name: Illustration Basics
    path: starters/basics.json
    description: Media, lighting and composition tags
    starter: true
  - name: Photography
    path: community/photo.yaml
    community: true
`

const basicsJSON = `{"version":"3.0","library":{"name":"Basics"},"groups":[
  {"name":"Style","categories":[{"name":"Medium","tags":[{"name":"ink"}]}]}]}`

func TestLoadAndStarter(t *testing.T) {
	_, fs := testutil.TestExchange(t)
	require.NoError(t, fs.Write("catalog.yaml", []byte(catalogYAML)))
	require.NoError(t, fs.Write("starters/basics.json", []byte(basicsJSON)))

	c, err := catalog.Load(fs, "catalog.yaml")
	require.NoError(t, err)
	require.Len(t, c.Entries, 2)

	starter, ok := c.Starter()
	require.True(t, ok)
	assert.Equal(t, "Illustration Basics", starter.Name)

	community := c.Community()
	require.Len(t, community, 1)
	assert.Equal(t, "Photography", community[0].Name)

	doc, err := c.StarterDocument(context.Background())
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, 1, doc.TagCount())

	_, err = c.Find("photography")
	assert.NoError(t, err)
	_, err = c.Find("Unknown")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = c.Document(community[0])
	assert.Error(t, err, "community file is absent")
}

func TestLoadJSONCatalog(t *testing.T) {
	_, fs := testutil.TestExchange(t)
	require.NoError(t, fs.Write("catalog.json",
		[]byte(`{"libraries":[{"name":"A","path":"a.yml","community":true}]}`)))

	c, err := catalog.Load(fs, "catalog.json")
	require.NoError(t, err)
	_, ok := c.Starter()
	assert.False(t, ok)

	doc, err := c.StarterDocument(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, doc)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"missing name":   "libraries:\n  - path: a.json\n",
		"bad extension":  "libraries:\n  - name: A\n    path: a.txt\n",
		"duplicate name": "libraries:\n  - {name: A, path: a.json}\n  - {name: a, path: b.json}\n",
		"two starters":   "libraries:\n  - {name: A, path: a.json, starter: true}\n  - {name: B, path: b.json, starter: true}\n",
		"not yaml":       "libraries: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, fs := testutil.TestExchange(t)
			require.NoError(t, fs.Write("catalog.yaml", []byte(body)))
			_, err := catalog.Load(fs, "catalog.yaml")
			assert.Error(t, err)
		})
	}
}

func TestEmptyCatalog(t *testing.T) {
	c := catalog.Empty()
	_, ok := c.Starter()
	assert.False(t, ok)
	assert.Empty(t, c.Community())
	doc, err := c.StarterDocument(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, doc)
}
