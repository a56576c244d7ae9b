package session

import (
	"bufio"
	"database/sql/driver"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/ajitpratap0/bulkflow/pkg/bulkerrors"
)

const mysqlTimeLayout = "2006-01-02 15:04:05.999999"

// writeInfile encodes src in the LOAD DATA text format: tab separated
// fields, newline terminated lines, backslash escapes and \N for NULL.
func writeInfile(w io.Writer, src CopySource, columns int) error {
	bw := bufio.NewWriterSize(w, 64*1024)
	var field []byte
	for src.Next() {
		values, err := src.Values()
		if err != nil {
			return err
		}
		if len(values) != columns {
			return bulkerrors.Newf(bulkerrors.ErrorTypeData, "row has %d values, expected %d", len(values), columns)
		}
		for i, v := range values {
			if i > 0 {
				if err := bw.WriteByte('\t'); err != nil {
					return err
				}
			}
			field, err = appendField(field[:0], v)
			if err != nil {
				return err
			}
			if _, err := bw.Write(field); err != nil {
				return err
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	if err := src.Err(); err != nil {
		return err
	}
	return bw.Flush()
}

// appendField appends the encoded form of v.
func appendField(buf []byte, v any) ([]byte, error) {
	if valuer, ok := v.(driver.Valuer); ok {
		dv, err := valuer.Value()
		if err != nil {
			return buf, bulkerrors.Wrap(err, bulkerrors.ErrorTypeData, "converting value for bulk copy failed")
		}
		v = dv
	}

	switch x := v.(type) {
	case nil:
		return append(buf, `\N`...), nil
	case string:
		return appendEscaped(buf, x), nil
	case []byte:
		if x == nil {
			return append(buf, `\N`...), nil
		}
		return appendEscaped(buf, string(x)), nil
	case bool:
		if x {
			return append(buf, '1'), nil
		}
		return append(buf, '0'), nil
	case int:
		return strconv.AppendInt(buf, int64(x), 10), nil
	case int8:
		return strconv.AppendInt(buf, int64(x), 10), nil
	case int16:
		return strconv.AppendInt(buf, int64(x), 10), nil
	case int32:
		return strconv.AppendInt(buf, int64(x), 10), nil
	case int64:
		return strconv.AppendInt(buf, x, 10), nil
	case uint:
		return strconv.AppendUint(buf, uint64(x), 10), nil
	case uint8:
		return strconv.AppendUint(buf, uint64(x), 10), nil
	case uint16:
		return strconv.AppendUint(buf, uint64(x), 10), nil
	case uint32:
		return strconv.AppendUint(buf, uint64(x), 10), nil
	case uint64:
		return strconv.AppendUint(buf, x, 10), nil
	case float32:
		return strconv.AppendFloat(buf, float64(x), 'g', -1, 32), nil
	case float64:
		return strconv.AppendFloat(buf, x, 'g', -1, 64), nil
	case time.Time:
		return x.AppendFormat(buf, mysqlTimeLayout), nil
	case fmt.Stringer:
		return appendEscaped(buf, x.String()), nil
	}
	return buf, bulkerrors.Newf(bulkerrors.ErrorTypeData, "unsupported bulk copy value of type %T", v)
}

func appendEscaped(buf []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			buf = append(buf, '\\', '\\')
		case '\t':
			buf = append(buf, '\\', 't')
		case '\n':
			buf = append(buf, '\\', 'n')
		case '\r':
			buf = append(buf, '\\', 'r')
		case 0:
			buf = append(buf, '\\', '0')
		default:
			buf = append(buf, c)
		}
	}
	return buf
}
