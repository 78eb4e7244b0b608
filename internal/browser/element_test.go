// internal/browser/element_test.go
package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/jobagent-cli/api/schemas"
)

const resultsPage = `
<html><body>
  <div id="results">
    <article class="jobTuple">
      <h3><a href="/senior-ar-executive-jid-1">  Senior AR
          Executive </a></h3>
      <div class="companyInfo"><a>ACME Corp</a></div>
    </article>
    <article class="jobTuple">
      <a class="title" href="https://www.naukrigulf.com/credit-controller-jid-2">Credit Controller</a>
      <span class="comp-name">Globex</span>
    </article>
    <article class="jobTuple">
      <p>Sponsored</p>
    </article>
  </div>
  <button id="apply-button">Apply Now</button>
</body></html>`

func TestQueryHTML(t *testing.T) {
	t.Run("css", func(t *testing.T) {
		els, err := QueryHTML(resultsPage, schemas.CSS("article.jobTuple"))
		require.NoError(t, err)
		assert.Len(t, els, 3)
	})

	t.Run("xpath", func(t *testing.T) {
		els, err := QueryHTML(resultsPage, schemas.XPath("//button[contains(text(), 'Apply')]"))
		require.NoError(t, err)
		require.Len(t, els, 1)
		assert.Equal(t, "Apply Now", els[0].Text())
	})

	t.Run("id", func(t *testing.T) {
		els, err := QueryHTML(resultsPage, schemas.ID("apply-button"))
		require.NoError(t, err)
		require.Len(t, els, 1)
		id, ok := els[0].Attr("id")
		assert.True(t, ok)
		assert.Equal(t, "apply-button", id)
	})

	t.Run("invalid xpath is an error", func(t *testing.T) {
		_, err := QueryHTML(resultsPage, schemas.XPath("//button[("))
		assert.Error(t, err)
	})

	t.Run("unknown strategy is an error", func(t *testing.T) {
		_, err := QueryHTML(resultsPage, schemas.Locator{Strategy: "link-text", Value: "Apply"})
		assert.Error(t, err)
	})
}

func TestSnapshotNestedLookup(t *testing.T) {
	cards, err := QueryHTML(resultsPage, schemas.CSS("article.jobTuple"))
	require.NoError(t, err)
	require.Len(t, cards, 3)

	title := schemas.Selectors("title", schemas.CSS("a.title"), schemas.CSS(".jobTitle a"), schemas.CSS("h3 a"))

	t.Run("falls back to later candidates", func(t *testing.T) {
		el, ok := cards[0].FindFirst(title)
		require.True(t, ok)
		assert.Equal(t, "Senior AR Executive", el.Text(), "text is whitespace collapsed")
		href, ok := el.Attr("href")
		assert.True(t, ok)
		assert.Equal(t, "/senior-ar-executive-jid-1", href)
	})

	t.Run("first candidate wins when present", func(t *testing.T) {
		el, ok := cards[1].FindFirst(title)
		require.True(t, ok)
		assert.Equal(t, "Credit Controller", el.Text())
	})

	t.Run("no candidate matches", func(t *testing.T) {
		_, ok := cards[2].FindFirst(title)
		assert.False(t, ok)
	})

	t.Run("relative xpath inside a card", func(t *testing.T) {
		found, err := cards[0].Find(schemas.XPath(".//div[@class='companyInfo']/a"))
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "ACME Corp", found[0].Text())
	})

	t.Run("html round trip", func(t *testing.T) {
		assert.Contains(t, cards[1].HTML(), `class="comp-name"`)
	})
}

func TestFirstNonEmpty(t *testing.T) {
	set := schemas.Selectors("cards", schemas.CSS(".list"), schemas.CSS(".job-tuple"), schemas.CSS("article.jobTuple"))
	els, matched, err := FirstNonEmpty(resultsPage, set)
	require.NoError(t, err)
	assert.Len(t, els, 3)
	assert.Equal(t, schemas.CSS("article.jobTuple"), matched)

	none, _, err := FirstNonEmpty(resultsPage, schemas.Selectors("none", schemas.CSS(".nothing")))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestElementFromOuterHTML(t *testing.T) {
	el, err := elementFromOuterHTML(`<button class="apply">Apply <b>now</b></button>`)
	require.NoError(t, err)
	assert.Equal(t, "Apply now", el.Text())
	cls, _ := el.Attr("class")
	assert.Equal(t, "apply", cls)

	_, err = elementFromOuterHTML("just text")
	assert.Error(t, err)
}
