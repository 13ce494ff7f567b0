package repos

import "testing"

func TestWhereBuilderNumbersPlaceholders(t *testing.T) {
	wb := &whereBuilder{}
	wb.add("tenant_id = $%d", "t1")
	wb.add("created_at BETWEEN $%d AND $%d", "a", "b")
	wb.add("status_id = $%d", 4)
	got := wb.where()
	want := "WHERE tenant_id = $1 AND created_at BETWEEN $2 AND $3 AND status_id = $4"
	if got != want {
		t.Fatalf("where = %q, want %q", got, want)
	}
	if len(wb.args) != 4 {
		t.Fatalf("args = %v", wb.args)
	}
	if wb.next() != 5 {
		t.Fatalf("next = %d, want 5", wb.next())
	}
}

func TestWhereBuilderEmpty(t *testing.T) {
	wb := &whereBuilder{}
	if got := wb.where(); got != "" {
		t.Fatalf("empty builder where = %q", got)
	}
	if wb.next() != 1 {
		t.Fatalf("next = %d, want 1", wb.next())
	}
}

func TestWhereBuilderSharedBetweenDataAndCount(t *testing.T) {
	wb := &whereBuilder{}
	wb.add("d.tenant_id = $%d", "t1")
	wb.add("d.type_id = $%d", 2)
	dataSQL := "SELECT device_id FROM devices d " + wb.where()
	countSQL := "SELECT COUNT(*) FROM devices d " + wb.where()
	if dataSQL[len("SELECT device_id FROM devices d "):] != countSQL[len("SELECT COUNT(*) FROM devices d "):] {
		t.Fatal("data and count queries diverged")
	}
}
