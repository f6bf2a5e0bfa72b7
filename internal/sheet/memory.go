package sheet

// Memory is an in-process Workbook built from string grids. It backs tests
// and any caller that already holds tabular data.
type Memory struct {
	order  []string
	sheets map[string]*MemorySheet
}

// NewMemory returns an empty in-memory workbook.
func NewMemory() *Memory {
	return &Memory{sheets: make(map[string]*MemorySheet)}
}

// Add appends a sheet with the given rows. The first row is conventionally
// the header but the workbook does not care. Re-adding a name replaces it.
func (m *Memory) Add(name string, rows [][]string) *Memory {
	if _, exists := m.sheets[name]; !exists {
		m.order = append(m.order, name)
	}
	m.sheets[name] = &MemorySheet{name: name, rows: rows}
	return m
}

func (m *Memory) SheetNames() []string {
	return append([]string(nil), m.order...)
}

func (m *Memory) Sheet(name string) (Sheet, bool) {
	s, ok := m.sheets[name]
	return s, ok
}

func (m *Memory) Close() error { return nil }

// MemorySheet is the Sheet implementation behind Memory.
type MemorySheet struct {
	name string
	rows [][]string
}

func (s *MemorySheet) Name() string { return s.name }

func (s *MemorySheet) RowCount() int { return len(s.rows) }

func (s *MemorySheet) Row(i int) []string {
	if i < 0 || i >= len(s.rows) {
		return nil
	}
	return s.rows[i]
}

func (s *MemorySheet) Rows(start, end int) [][]string {
	if start < 0 {
		start = 0
	}
	if end > len(s.rows) {
		end = len(s.rows)
	}
	if start >= end {
		return nil
	}
	return s.rows[start:end]
}
