package midisampler

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/GeoffreyPlitt/debuggo"
)

var parserDebug = debuggo.Debug("msampler:sfz")

// SfzData represents the parsed SFZ file structure
type SfzData struct {
	Global  *SfzSection
	Groups  []*SfzSection
	Regions []*SfzSection
}

// SfzSection represents a section in the SFZ file (global, group, or region).
// Regions and groups keep references to their enclosing sections so opcode
// lookups can fall back region → group → global.
type SfzSection struct {
	Type    string            // "global", "group", or "region"
	Opcodes map[string]string // opcode name -> value

	ParentGroup *SfzSection
	GlobalRef   *SfzSection
}

// ParseSfzFile parses an SFZ file and returns the structured data
func ParseSfzFile(filePath string) (*SfzData, error) {
	parserDebug("Starting to parse SFZ file: %s", filePath)

	file, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("SFZ file %s: %w", filePath, ErrFileNotFound)
		}
		return nil, fmt.Errorf("failed to open SFZ file: %w", err)
	}
	defer file.Close()

	return ParseSfz(file)
}

// ParseSfz parses SFZ text. Unknown sections and opcodes are logged and skipped.
func ParseSfz(r io.Reader) (*SfzData, error) {
	sfzData := &SfzData{
		Groups:  make([]*SfzSection, 0),
		Regions: make([]*SfzSection, 0),
	}

	scanner := bufio.NewScanner(r)
	lineNum := 0
	var currentSection, currentGroup *SfzSection

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(stripComment(scanner.Text()))
		if line == "" {
			continue
		}

		// A header may share its line with opcodes: "<region> sample=a.wav"
		for strings.HasPrefix(line, "<") {
			end := strings.Index(line, ">")
			if end == -1 {
				parserDebug("Warning: Unterminated header at line %d: %s", lineNum, line)
				line = ""
				break
			}
			sectionType := strings.ToLower(strings.TrimSpace(line[1:end]))
			line = strings.TrimSpace(line[end+1:])

			currentSection = &SfzSection{
				Type:      sectionType,
				Opcodes:   make(map[string]string),
				GlobalRef: sfzData.Global,
			}

			switch sectionType {
			case "global":
				currentSection.GlobalRef = nil
				sfzData.Global = currentSection
				currentGroup = nil
			case "group":
				sfzData.Groups = append(sfzData.Groups, currentSection)
				currentGroup = currentSection
			case "region":
				currentSection.ParentGroup = currentGroup
				sfzData.Regions = append(sfzData.Regions, currentSection)
			default:
				parserDebug("Warning: Unknown section type: %s", sectionType)
			}
		}
		if line == "" {
			continue
		}

		if currentSection != nil {
			parseOpcodes(line, currentSection, lineNum)
		} else {
			parserDebug("Warning: Opcode found outside of section at line %d: %s", lineNum, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading SFZ file: %w", err)
	}

	parserDebug("Parsing complete. Found %d regions, %d groups", len(sfzData.Regions), len(sfzData.Groups))
	return sfzData, nil
}

func stripComment(line string) string {
	if i := strings.Index(line, "//"); i >= 0 {
		return line[:i]
	}
	return line
}

// parseOpcodes parses a line containing opcodes and adds them to the section.
// Sample paths may contain spaces, so a value runs until the next "name=".
func parseOpcodes(line string, section *SfzSection, lineNum int) {
	parts := strings.Fields(line)

	for i := 0; i < len(parts); i++ {
		part := parts[i]
		equalIndex := strings.Index(part, "=")
		if equalIndex == -1 {
			continue
		}

		opcode := strings.ToLower(part[:equalIndex])
		value := part[equalIndex+1:]
		for i+1 < len(parts) && !strings.Contains(parts[i+1], "=") {
			i++
			value += " " + parts[i]
		}

		if isKnownOpcode(opcode) {
			section.Opcodes[opcode] = value
			parserDebug("Parsed opcode: %s = %s", opcode, value)
		} else {
			parserDebug("Warning: Unknown opcode '%s' at line %d", opcode, lineNum)
		}
	}
}

var knownOpcodes = map[string]bool{
	"sample": true,

	// Key/Velocity Mapping
	"lokey":           true,
	"hikey":           true,
	"lovel":           true,
	"hivel":           true,
	"key":             true,
	"pitch_keycenter": true,

	// Envelope
	"ampeg_attack":  true,
	"ampeg_decay":   true,
	"ampeg_sustain": true,
	"ampeg_release": true,

	// Looping
	"loop_mode":  true,
	"loop_start": true,
	"loop_end":   true,

	// Pitch bend
	"bend_up":   true,
	"bend_down": true,
}

// isKnownOpcode checks if an opcode is in our supported list
func isKnownOpcode(opcode string) bool {
	return knownOpcodes[opcode]
}

// lookup finds an opcode in the section or, failing that, in its group and
// then the global section.
func (s *SfzSection) lookup(opcode string) (string, bool) {
	if s == nil {
		return "", false
	}
	global := s.GlobalRef
	if global == nil && s.ParentGroup != nil {
		global = s.ParentGroup.GlobalRef
	}
	for _, section := range [...]*SfzSection{s, s.ParentGroup, global} {
		if section == nil {
			continue
		}
		if value, ok := section.Opcodes[opcode]; ok {
			return value, true
		}
	}
	return "", false
}

// GetStringOpcode returns a string opcode value, or empty string if not found
func (s *SfzSection) GetStringOpcode(opcode string) string {
	if s == nil || s.Opcodes == nil {
		return ""
	}
	return s.Opcodes[opcode]
}

// GetIntOpcode returns an integer opcode value, or defaultValue if not found or invalid
func (s *SfzSection) GetIntOpcode(opcode string, defaultValue int) int {
	if s == nil || s.Opcodes == nil {
		return defaultValue
	}
	value, exists := s.Opcodes[opcode]
	if !exists {
		return defaultValue
	}
	return parseIntOpcode(opcode, value, defaultValue)
}

// GetFloatOpcode returns a float opcode value, or defaultValue if not found or invalid
func (s *SfzSection) GetFloatOpcode(opcode string, defaultValue float64) float64 {
	if s == nil || s.Opcodes == nil {
		return defaultValue
	}
	value, exists := s.Opcodes[opcode]
	if !exists {
		return defaultValue
	}
	return parseFloatOpcode(opcode, value, defaultValue)
}

// GetInheritedStringOpcode is GetStringOpcode with region → group → global fallback.
func (s *SfzSection) GetInheritedStringOpcode(opcode string) string {
	value, _ := s.lookup(opcode)
	return value
}

// GetInheritedIntOpcode is GetIntOpcode with region → group → global fallback.
func (s *SfzSection) GetInheritedIntOpcode(opcode string, defaultValue int) int {
	value, ok := s.lookup(opcode)
	if !ok {
		return defaultValue
	}
	return parseIntOpcode(opcode, value, defaultValue)
}

// GetInheritedFloatOpcode is GetFloatOpcode with region → group → global fallback.
func (s *SfzSection) GetInheritedFloatOpcode(opcode string, defaultValue float64) float64 {
	value, ok := s.lookup(opcode)
	if !ok {
		return defaultValue
	}
	return parseFloatOpcode(opcode, value, defaultValue)
}

func parseIntOpcode(opcode, value string, defaultValue int) int {
	intVal, err := strconv.Atoi(strings.TrimPrefix(value, "+"))
	if err != nil {
		parserDebug("Warning: Invalid integer value for opcode %s: %s", opcode, value)
		return defaultValue
	}
	return intVal
}

// GetInheritedNoteOpcode reads a key opcode given as a MIDI number or a note
// name such as "c4" (middle C, 60) or "f#3".
func (s *SfzSection) GetInheritedNoteOpcode(opcode string, defaultValue int) int {
	value, ok := s.lookup(opcode)
	if !ok {
		return defaultValue
	}
	note, err := parseNote(value)
	if err != nil {
		parserDebug("Warning: Invalid note value for opcode %s: %s", opcode, value)
		return defaultValue
	}
	return note
}

var noteOffsets = map[byte]int{'c': 0, 'd': 2, 'e': 4, 'f': 5, 'g': 7, 'a': 9, 'b': 11}

func parseNote(value string) (int, error) {
	if n, err := strconv.Atoi(value); err == nil {
		if n < 0 || n > 127 {
			return 0, fmt.Errorf("note %d out of range", n)
		}
		return n, nil
	}

	v := strings.ToLower(value)
	if len(v) < 2 {
		return 0, fmt.Errorf("invalid note name %q", value)
	}
	offset, ok := noteOffsets[v[0]]
	if !ok {
		return 0, fmt.Errorf("invalid note name %q", value)
	}
	rest := v[1:]
	switch rest[0] {
	case '#':
		offset++
		rest = rest[1:]
	case 'b':
		offset--
		rest = rest[1:]
	}
	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("invalid note name %q", value)
	}
	n := (octave+1)*12 + offset
	if n < 0 || n > 127 {
		return 0, fmt.Errorf("note %q out of range", value)
	}
	return n, nil
}

func parseFloatOpcode(opcode, value string, defaultValue float64) float64 {
	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		parserDebug("Warning: Invalid float value for opcode %s: %s", opcode, value)
		return defaultValue
	}
	return floatVal
}
