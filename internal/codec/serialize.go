package codec

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/domain"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/numeric"
)

// pairSeparator joins top-level pairs in serialized records.
const pairSeparator = ", "

// Serialize renders the full record: custom fields in insertion order, then
// clickcount, money and status.
//
//	{"foo":"bar", "clickcount":0, "money":0.0, "status":0.0}
func Serialize(rec *domain.DomainRecord, acct domain.Accounting) string {
	var b bytes.Buffer
	b.WriteByte('{')
	rec.Custom.Each(func(key string, value json.RawMessage) {
		writeKey(&b, key)
		b.WriteByte(':')
		b.Write(value)
		b.WriteString(pairSeparator)
	})
	writeTracked(&b, rec.Tracked(acct))
	b.WriteByte('}')
	return b.String()
}

// SerializeStandardFields renders only the reserved fields.
//
//	{ "clickcount":1, "money":0.001, "status":0.0000002}
func SerializeStandardFields(t domain.Tracked) string {
	var b bytes.Buffer
	b.WriteString("{ ")
	writeTracked(&b, t)
	b.WriteByte('}')
	return b.String()
}

func writeTracked(b *bytes.Buffer, t domain.Tracked) {
	b.WriteString(`"` + domain.FieldClickCount + `":`)
	b.WriteString(strconv.FormatInt(t.ClickCount, 10))
	b.WriteString(pairSeparator)
	b.WriteString(`"` + domain.FieldMoney + `":`)
	b.WriteString(numeric.Format(t.Money))
	b.WriteString(pairSeparator)
	b.WriteString(`"` + domain.FieldStatus + `":`)
	b.WriteString(numeric.Format(t.Status))
}
