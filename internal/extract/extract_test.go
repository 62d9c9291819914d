package extract

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reservePage = `
<html><body>
<table class="table">
<tr><td>
<form name="VA43" method="post" action="purchase.php">
  <input type="hidden" value="43" name="flight">
  <input type="hidden" value="472.56" name="price">
  <input type="hidden" value="Virgin America" name="airline">
  <input type="hidden" value="Paris" name="fromPort">
  <input type="hidden" value="London" name="toPort">
  <input type="submit" class="btn btn-small" value="Choose This Flight">
</form>
</td></tr>
<tr><td>
<FORM method='post' action='purchase.php'>
  <input type='hidden' name='flight' value='234'>
  <input type='hidden' name='price' value='432.98'>
  <input type='hidden' name='airline' value='United Airlines'>
</FORM>
</td></tr>
</table>
</body></html>`

func TestExtract_BothAttributeOrders(t *testing.T) {
	recs := Flights.Extract(reservePage)
	require.Len(t, recs, 2)

	assert.Equal(t, Record{
		"flight":   "43",
		"price":    "472.56",
		"airline":  "Virgin America",
		"fromPort": "Paris",
		"toPort":   "London",
	}, recs[0])

	assert.Equal(t, "234", recs[1]["flight"])
	assert.Equal(t, "432.98", recs[1]["price"])
	assert.Equal(t, "United Airlines", recs[1]["airline"])

	_, ok := recs[1].Get("fromPort")
	assert.False(t, ok, "optional field should be absent, not empty")
}

func TestExtract_SkipsBlocksMissingRequiredFields(t *testing.T) {
	doc := `
<form><input name="flight" value="1"><input name="price" value="10"></form>
<form><input name="flight" value="2"><input name="price" value="20"><input name="airline" value="Lufthansa"></form>
<form><input name="airline" value="Aer Lingus"><input name="price" value="30"></form>`

	recs := Flights.Extract(doc)
	require.Len(t, recs, 1)
	assert.Equal(t, "2", recs[0]["flight"])
	assert.Equal(t, "Lufthansa", recs[0]["airline"])
}

func TestExtract_FirstMatchWins(t *testing.T) {
	doc := `<form>
<input name="flight" value="first">
<input name="flight" value="second">
<input name="price" value="1"><input name="airline" value="A">
</form>`

	recs := Flights.Extract(doc)
	require.Len(t, recs, 1)
	assert.Equal(t, "first", recs[0]["flight"])
}

func TestExtract_CaseInsensitive(t *testing.T) {
	doc := `<Form><INPUT NAME="Flight" VALUE="9"><input Name="PRICE" Value="$1"><input name="airline" value="Delta"></Form>`

	recs := Flights.Extract(doc)
	require.Len(t, recs, 1)
	assert.Equal(t, "9", recs[0]["flight"])
	assert.Equal(t, "$1", recs[0]["price"])
}

func TestExtract_EmptyAndUnrelatedInput(t *testing.T) {
	assert.Empty(t, Flights.Extract(""))
	assert.Empty(t, Flights.Extract("<html><body>no offers today</body></html>"))
	assert.Empty(t, Flights.Extract("<form><input name=\"flight\" value=\"1\">"), "unterminated block")
}

func TestExtract_ValueDoesNotCrossTags(t *testing.T) {
	// name and value live in different tags; neither order should pair them up
	doc := `<form>
<input name="flight"><input value="stray">
<input name="flight2" value="x">
<input name="price" value="1"><input name="airline" value="A">
</form>`

	assert.Empty(t, Flights.Extract(doc))
}

func TestExtract_KBlocks(t *testing.T) {
	for _, k := range []int{0, 1, 5, 40} {
		var b strings.Builder
		b.WriteString("<html>")
		for i := 0; i < k; i++ {
			if i%2 == 0 {
				fmt.Fprintf(&b, `<form><input value="F%d" name="flight"><input name="price" value="$%d"><input value="Carrier %d" name="airline"></form>`, i, i, i)
			} else {
				fmt.Fprintf(&b, `<form><input name="airline" value="Carrier %d"><input value="$%d" name="price"><input name="flight" value="F%d"></form>`, i, i, i)
			}
		}
		b.WriteString("</html>")

		recs := Flights.Extract(b.String())
		require.Len(t, recs, k)
		for i, r := range recs {
			assert.Equal(t, fmt.Sprintf("F%d", i), r["flight"])
			assert.Equal(t, fmt.Sprintf("$%d", i), r["price"])
			assert.Equal(t, fmt.Sprintf("Carrier %d", i), r["airline"])
		}
	}
}

func TestNew_RequiredOutsideFieldList(t *testing.T) {
	e := New("div", []string{"a"}, "b")
	recs := e.Extract(`<div><i name="a" value="1"><i name="b" value="2"></div><div><i name="a" value="3"></div>`)
	require.Len(t, recs, 1)
	assert.Equal(t, Record{"a": "1", "b": "2"}, recs[0])
}
