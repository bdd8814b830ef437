package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultTaxonomy(t *testing.T) {
	assert := assert.New(t)

	tax := DefaultTaxonomy()
	assert.NoError(tax.Validate())

	spam, ok := tax.Category(" SPAM")
	assert.True(ok)
	assert.True(spam.HasSubtype("scam"))
	assert.False(spam.HasSubtype("doxxing"))

	_, ok = tax.Category("automated")
	assert.False(ok)
}

func TestLoadTaxonomyFile(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	good := filepath.Join(dir, "good.yaml")
	assert.NoError(os.WriteFile(good, []byte(`
categories:
  - name: spam
    subtypes: [scam, crypto]
  - name: fakes
    subtypes: [deepfake]
`), 0o644))
	tax, err := LoadTaxonomyFile(good)
	assert.NoError(err)
	assert.Equal([]string{"spam", "fakes"}, tax.CategoryNames())
	c, ok := tax.Category("spam")
	assert.True(ok)
	assert.True(c.HasSubtype("crypto"))

	for name, body := range map[string]string{
		"empty.yaml":    "categories: []\n",
		"dupe.yaml":     "categories:\n  - {name: spam, subtypes: [a]}\n  - {name: spam, subtypes: [b]}\n",
		"nosub.yaml":    "categories:\n  - {name: spam, subtypes: []}\n",
		"upper.yaml":    "categories:\n  - {name: Spam, subtypes: [a]}\n",
		"reserved.yaml": "categories:\n  - {name: automated, subtypes: [a]}\n",
		"broken.yaml":   "categories: [",
	} {
		p := filepath.Join(dir, name)
		assert.NoError(os.WriteFile(p, []byte(body), 0o644))
		_, err := LoadTaxonomyFile(p)
		assert.Error(err, name)
	}

	_, err = LoadTaxonomyFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(err)
}
