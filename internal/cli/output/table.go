package output

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
)

// maxInlineItems is the longest slice a cell lists item by item.
const maxInlineItems = 4

// TableFormatter renders data as aligned columns.
//
// A slice of structs becomes one row per element with a column per
// exported field. Columns are named after the json tag, upper-cased; a
// `table:"wide"` tag hides the column unless Wide is set and `table:"-"`
// always hides it. A single struct or map becomes a FIELD/VALUE listing.
// Anything else is written as JSON.
type TableFormatter struct {
	Wide      bool
	NoHeaders bool
}

// Format implements Formatter.
func (f *TableFormatter) Format(w io.Writer, data any) error {
	switch t := data.(type) {
	case nil:
		return nil
	case *Table:
		return t.RenderWithOptions(w, f.NoHeaders)
	case Table:
		return t.RenderWithOptions(w, f.NoHeaders)
	}

	table, ok := toTable(reflect.ValueOf(data), f.Wide)
	if !ok {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}
	return table.RenderWithOptions(w, f.NoHeaders)
}

func toTable(v reflect.Value, wide bool) (*Table, bool) {
	v = deref(v)
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		return sliceToTable(v, wide), true
	case reflect.Map:
		return mapToTable(v), true
	case reflect.Struct:
		if v.Type() == reflect.TypeFor[time.Time]() {
			return nil, false
		}
		return structToTable(v, wide), true
	}
	return nil, false
}

type column struct {
	header string
	index  int
}

// columnsOf lists the visible columns of struct type t.
func columnsOf(t reflect.Type, wide bool) []column {
	var cols []column
	for i := range t.NumField() {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		tag := field.Tag.Get("table")
		if tag == "-" || (strings.Contains(tag, "wide") && !wide) {
			continue
		}
		cols = append(cols, column{header: columnName(field), index: i})
	}
	return cols
}

// columnName prefers the json name: "base_size" and BaseSize both become
// BASE_SIZE.
func columnName(field reflect.StructField) string {
	name := field.Name
	if tag, _, _ := strings.Cut(field.Tag.Get("json"), ","); tag != "" && tag != "-" {
		name = tag
	}
	return strings.ToUpper(toSnakeCase(name))
}

func sliceToTable(v reflect.Value, wide bool) *Table {
	table := &Table{}
	if v.Len() == 0 {
		return table
	}

	elemType := v.Type().Elem()
	if elemType.Kind() == reflect.Pointer {
		elemType = elemType.Elem()
	}

	switch elemType.Kind() {
	case reflect.Struct:
		cols := columnsOf(elemType, wide)
		for _, c := range cols {
			table.Headers = append(table.Headers, c.header)
		}
		for i := range v.Len() {
			elem := deref(v.Index(i))
			row := make([]string, len(cols))
			for j, c := range cols {
				if elem.IsValid() {
					row[j] = formatValue(elem.Field(c.index))
				}
			}
			table.AddRow(row...)
		}
	default:
		table.Headers = []string{"VALUE"}
		for i := range v.Len() {
			table.AddRow(formatValue(v.Index(i)))
		}
	}
	return table
}

// mapToTable lists a map sorted by its formatted keys.
func mapToTable(v reflect.Value) *Table {
	table := &Table{Headers: []string{"KEY", "VALUE"}}
	iter := v.MapRange()
	for iter.Next() {
		table.AddRow(formatValue(iter.Key()), formatValue(iter.Value()))
	}
	slices.SortFunc(table.Rows, func(a, b []string) int { return cmp.Compare(a[0], b[0]) })
	return table
}

func structToTable(v reflect.Value, wide bool) *Table {
	table := &Table{Headers: []string{"FIELD", "VALUE"}}
	for _, c := range columnsOf(v.Type(), wide) {
		table.AddRow(strings.ToLower(c.header), formatValue(v.Field(c.index)))
	}
	return table
}

func deref(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// formatValue renders one cell. Nil is "null" so a null reference reads
// differently from an empty string, which is "-".
func formatValue(v reflect.Value) string {
	if v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) && v.IsNil() {
		return "null"
	}
	v = deref(v)
	if !v.IsValid() {
		return ""
	}

	if v.Type() == reflect.TypeFor[time.Time]() {
		t := v.Interface().(time.Time)
		if t.IsZero() {
			return "-"
		}
		return t.Format("2006-01-02 15:04")
	}

	// Addresses, kinds and versions print the way they parse.
	if v.CanInterface() {
		if s, ok := v.Interface().(fmt.Stringer); ok {
			return s.String()
		}
	}

	switch v.Kind() {
	case reflect.String:
		if v.Len() == 0 {
			return "-"
		}
		return v.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10)
	case reflect.Float32:
		return strconv.FormatFloat(v.Float(), 'g', -1, 32)
	case reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	case reflect.Slice, reflect.Array:
		return formatList(v)
	case reflect.Map:
		if v.Len() == 0 {
			return "-"
		}
		return fmt.Sprintf("{%d keys}", v.Len())
	}
	return fmt.Sprintf("%v", v.Interface())
}

// formatList spells out short lists and counts long ones.
func formatList(v reflect.Value) string {
	n := v.Len()
	switch {
	case n == 0:
		return "-"
	case n > maxInlineItems:
		return fmt.Sprintf("[%d items]", n)
	}
	items := make([]string, n)
	for i := range n {
		items[i] = formatValue(v.Index(i))
	}
	return strings.Join(items, ",")
}

// toSnakeCase inserts an underscore before each inner upper-case letter.
func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Table is pre-rendered tabular data.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Render writes the table with its headers.
func (t *Table) Render(w io.Writer) error {
	return t.RenderWithOptions(w, false)
}

// RenderWithOptions writes the table, optionally without headers.
func (t *Table) RenderWithOptions(w io.Writer, noHeaders bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if !noHeaders && len(t.Headers) > 0 {
		fmt.Fprintln(tw, strings.Join(t.Headers, "\t"))
	}
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// AddRow appends a row.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}
