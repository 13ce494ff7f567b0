package repos

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestAlarmWhereSerialSubstringMatch(t *testing.T) {
	wb := alarmWhere(uuid.New(), AlarmFilter{SerialNumber: "WM-00"})
	clause := wb.where()
	if !strings.Contains(clause, "a.serial_number ILIKE $2") {
		t.Fatalf("where = %q", clause)
	}
	if wb.args[1] != "%WM-00%" {
		t.Fatalf("pattern = %v", wb.args[1])
	}
}

func TestAlarmWhereSubtreeScope(t *testing.T) {
	wb := alarmWhere(uuid.New(), AlarmFilter{NodeIDs: []int64{3, 4, 5}})
	clause := wb.where()
	if !strings.Contains(clause, "d.node_id = ANY($2)") {
		t.Fatalf("where = %q", clause)
	}
	ids, ok := wb.args[1].([]int64)
	if !ok || len(ids) != 3 {
		t.Fatalf("node ids = %v", wb.args[1])
	}
}

func TestAlarmOrderByWhitelist(t *testing.T) {
	cases := []struct {
		sortBy, sortOrder, want string
	}{
		{"severity", "asc", " ORDER BY at.severity ASC"},
		{"Serial_Number", "ASC", " ORDER BY a.serial_number ASC"},
		{"status", "", " ORDER BY ast.name DESC"},
		{"", "", " ORDER BY a.created_at DESC"},
	}
	for _, c := range cases {
		if got := alarmOrderBy(c.sortBy, c.sortOrder); got != c.want {
			t.Fatalf("alarmOrderBy(%q, %q) = %q, want %q", c.sortBy, c.sortOrder, got, c.want)
		}
	}
}

func TestAlarmOrderByRejectsInjection(t *testing.T) {
	got := alarmOrderBy("created_at; DROP TABLE alarms", "desc")
	if got != " ORDER BY a.created_at DESC" {
		t.Fatalf("unlisted column rendered as %q", got)
	}
}
