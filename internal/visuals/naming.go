package visuals

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"storyreel/internal/domain/story"
)

// File names sort lexically into presentation order: title, scenes, entities.
const (
	titlePrefix  = "image_00_title_"
	scenePrefix  = "image_01_scene_"
	entityPrefix = "image_02_entity_"
)

var unsafeFileChars = regexp.MustCompile(`[\\/*?:"<>|\n\r]`)

// slug keeps letters and digits, replaces everything else with '_' and
// cuts the result to max runes.
func slug(s string, max int) string {
	var b strings.Builder
	n := 0
	for _, r := range s {
		if n == max {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
		n++
	}
	return b.String()
}

func titleFilename(title string) string {
	return titlePrefix + slug(title, 50) + ".jpg"
}

// sceneFilename takes the zero-based scene index.
func sceneFilename(index int) string {
	return fmt.Sprintf("%s%02d.jpg", scenePrefix, index+1)
}

func entityFilename(name string) string {
	return entityPrefix + slug(name, 30) + ".jpg"
}

// entityFilenames names every entity of a batch. A name whose slug is
// already taken gets its one-based position appended.
func entityFilenames(entities []story.Entity) []string {
	names := make([]string, len(entities))
	taken := make(map[string]bool, len(entities))
	for i, ent := range entities {
		name := entityFilename(ent.Name)
		for n := i + 1; taken[name]; n++ {
			name = fmt.Sprintf("%s%s_%d.jpg", entityPrefix, slug(ent.Name, 30), n)
		}
		taken[name] = true
		names[i] = name
	}
	return names
}

// PortraitFilename names an on-demand entity portrait.
func PortraitFilename(name string) string {
	return "entity_" + unsafeFileChars.ReplaceAllString(name, "_") + ".jpg"
}
