package coords

import (
	"encoding/binary"
	"fmt"
	"os"
)

const (
	// SumHistCountSize is the alphabet of the per-cell count model (count-1).
	SumHistCountSize = 64
	// ContextRange is the half-size of the neighbourhood used for sum contexts.
	ContextRange = 5
	// MaxSumContext is the largest normalized neighbour sum.
	MaxSumContext = 2*ContextRange*ContextRange + ContextRange
)

// contextTable holds, per block width 1..12, the coefficients that generate
// the map models: initial = a0 + a1*idx, context i = (b0 + b1*idx) + (c0 + c1*idx)*i.
var contextTable = [12][6]int{
	{65460, -26, 65525, -23, -27, -6},
	{65249, -105, 65488, -69, -89, 1},
	{64901, -239, 65439, -99, -170, -18},
	{64408, -417, 65393, -107, -276, -28},
	{63795, -653, 65361, -100, -374, -32},
	{63064, -942, 65339, -87, -430, -48},
	{62133, -1240, 65316, -73, -474, -45},
	{61165, -1598, 65313, -62, -526, -49},
	{60086, -1963, 65305, -47, -548, -57},
	{58872, -2313, 65310, -47, -603, -58},
	{57560, -2674, 65309, -35, -631, -53},
	{56284, -3023, 65316, -32, -622, -69},
}

// histCountTable holds the first three cumulative entries of the count model
// per block width.
var histCountTable = [12][3]int{
	{55215, 65029, 65447},
	{54857, 64959, 65411},
	{54600, 64897, 65382},
	{54361, 64839, 65366},
	{54115, 64777, 65348},
	{53832, 64693, 65326},
	{53468, 64571, 65301},
	{52968, 64397, 65260},
	{52332, 64160, 65209},
	{51592, 63843, 65141},
	{50717, 63448, 65048},
	{49691, 62982, 64919},
}

// Tables are the cumulative frequency tables of the coordinate models.
type Tables struct {
	Count      [SumHistCountSize]int
	InitialMap [2]int
	Map        [MaxSumContext + 1][2]int
}

// DefaultTables generates the built-in tables for a block width (1..12) and
// a context table index.
func DefaultTables(blockWidth, ctxIdx int) (Tables, error) {
	var t Tables
	if blockWidth < 1 || blockWidth > len(contextTable) {
		return t, fmt.Errorf("%w: %d", ErrBlockWidth, blockWidth)
	}
	hc := histCountTable[blockWidth-1]
	copy(t.Count[:3], hc[:])
	for i := 3; i < SumHistCountSize; i++ {
		t.Count[i] = 65535 - (SumHistCountSize - i)
	}

	ct := contextTable[blockWidth-1]
	a := ct[0] + ct[1]*ctxIdx
	b := ct[2] + ct[3]*ctxIdx
	c := ct[4] + ct[5]*ctxIdx
	t.InitialMap = [2]int{a, 65535}
	for i := range t.Map {
		t.Map[i] = [2]int{b + c*i, 65535}
	}
	return t, nil
}

// Save writes the tables as <prefix>.count and <prefix>.map, little-endian int32.
func (t *Tables) Save(prefix string) error {
	count := make([]int32, 0, SumHistCountSize)
	for _, v := range t.Count {
		count = append(count, int32(v))
	}
	if err := writeInt32s(prefix+".count", count); err != nil {
		return err
	}
	m := []int32{int32(t.InitialMap[0]), int32(t.InitialMap[1])}
	for _, row := range t.Map {
		m = append(m, int32(row[0]), int32(row[1]))
	}
	return writeInt32s(prefix+".map", m)
}

// LoadTables reads tables written by Save.
func LoadTables(prefix string) (Tables, error) {
	var t Tables
	count, err := readInt32s(prefix+".count", SumHistCountSize)
	if err != nil {
		return t, err
	}
	for i, v := range count {
		t.Count[i] = int(v)
	}
	m, err := readInt32s(prefix+".map", 2*(MaxSumContext+2))
	if err != nil {
		return t, err
	}
	t.InitialMap = [2]int{int(m[0]), int(m[1])}
	for j := range t.Map {
		t.Map[j] = [2]int{int(m[2+2*j]), int(m[3+2*j])}
	}
	return t, nil
}

func writeInt32s(path string, v []int32) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := binary.Write(f, binary.LittleEndian, v); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func readInt32s(path string, n int) ([]int32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("context file not found: %w", err)
	}
	defer f.Close()
	v := make([]int32, n)
	if err := binary.Read(f, binary.LittleEndian, v); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return v, nil
}
