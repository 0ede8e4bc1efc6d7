package events

// Event types published by the workspace and the editors
const (
	TypeCharacterCreated = "character.created"
	TypeCharacterUpdated = "character.updated"
	TypeCharacterDeleted = "character.deleted"

	TypeChapterCreated   = "chapter.created"
	TypeChapterUpdated   = "chapter.updated"
	TypeChapterDeleted   = "chapter.deleted"
	TypeChapterReordered = "chapter.reordered"

	TypePlotPointCreated = "plotpoint.created"
	TypePlotPointUpdated = "plotpoint.updated"
	TypePlotPointDeleted = "plotpoint.deleted"

	TypeTimelineUpdated = "timeline.updated"
	TypeMetadataUpdated = "metadata.updated"

	TypeBookLoaded   = "book.loaded"
	TypeBookReplaced = "book.replaced"

	TypeImpactDetected = "impact.detected"
	TypeSaveStatus     = "save.status"
)

// Patterns for common subscriptions
const (
	PatternAll        = `.*`
	PatternCharacters = `^character\.`
	PatternChapters   = `^chapter\.`
	PatternMutations  = `^(character|chapter|plotpoint|timeline|metadata)\.`
	PatternImpacts    = `^impact\.detected$`
)
