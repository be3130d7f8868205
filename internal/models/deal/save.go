package deal

import (
	"bufio"
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/cnclabs/deal/pkg/attrnet"
)

// SaveWeights writes the identity embeddings to filename and the attribute
// embeddings to filename+".attr". Each file starts with "<nodes> <dim>" and
// holds one "<name> v1 ... vd" line per node.
func (m *DEAL) SaveWeights(filename string, data *attrnet.Data, names []string) error {
	if err := m.checkData(data); err != nil {
		return err
	}
	if err := writeEmbeddings(filename, names, m.nodeNum, m.embDim, m.nodeEmb.Weight.Row); err != nil {
		return err
	}

	e, err := m.attrEmb.Encode(data)
	if err != nil {
		return err
	}
	return writeEmbeddings(filename+".attr", names, m.nodeNum, m.embDim, func(i int) []float64 {
		return mat.Row(nil, i, e)
	})
}

func writeEmbeddings(filename string, names []string, num, dim int, row func(int) []float64) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	fmt.Fprintf(w, "%d %d\n", num, dim)
	for i := 0; i < num; i++ {
		name := fmt.Sprint(i)
		if i < len(names) {
			name = names[i]
		}
		fmt.Fprint(w, name)
		for _, v := range row(i) {
			fmt.Fprintf(w, " %.6f", v)
		}
		fmt.Fprintln(w)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	return nil
}
