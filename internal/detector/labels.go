package detector

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LabelTable фиксированное соответствие индекса класса его имени
type LabelTable []string

// Name возвращает имя класса по индексу
func (t LabelTable) Name(classID int) (string, bool) {
	if classID < 0 || classID >= len(t) {
		return "", false
	}
	return t[classID], true
}

// Len количество классов
func (t LabelTable) Len() int {
	return len(t)
}

// LabelsFromMap строит таблицу из отображения индекс -> имя.
// Индексы должны идти подряд с нуля.
func LabelsFromMap(names map[int]string) (LabelTable, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("label table is empty")
	}

	table := make(LabelTable, len(names))
	for idx, name := range names {
		if idx < 0 || idx >= len(names) {
			return nil, fmt.Errorf("label index %d is not contiguous with %d labels", idx, len(names))
		}
		table[idx] = name
	}
	return table, nil
}

// ParseLabels разбирает таблицу меток в YAML.
// Поддерживаются data.yaml с ключом names, голый список и отображение
// индекс -> имя, в том числе литерал словаря из метаданных ONNX экспорта.
func ParseLabels(data []byte) (LabelTable, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse labels: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("label table is empty")
	}

	node := doc.Content[0]
	if names := mappingValue(node, "names"); names != nil {
		node = names
	}

	switch node.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return nil, fmt.Errorf("failed to decode label list: %w", err)
		}
		if len(list) == 0 {
			return nil, fmt.Errorf("label table is empty")
		}
		return LabelTable(list), nil
	case yaml.MappingNode:
		var names map[int]string
		if err := node.Decode(&names); err != nil {
			return nil, fmt.Errorf("failed to decode label map: %w", err)
		}
		return LabelsFromMap(names)
	default:
		return nil, fmt.Errorf("unsupported label table layout")
	}
}

// LoadLabelsFile читает таблицу меток из файла
func LoadLabelsFile(path string) (LabelTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read labels file: %w", err)
	}
	return ParseLabels(data)
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}
