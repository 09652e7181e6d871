package audit

// Event types written to audit_log.event_type.
const (
	// Checklist lifecycle. CHECKLIST_DELETED is the move to trash;
	// CHECKLIST_HARD_DELETED removes the rows for good.
	ChecklistCreated     = "CHECKLIST_CREATED"
	ChecklistUpdated     = "CHECKLIST_UPDATED"
	ChecklistDeleted     = "CHECKLIST_DELETED"
	ChecklistRestored    = "CHECKLIST_RESTORED"
	ChecklistRecovered   = "CHECKLIST_RECOVERED"
	ChecklistHardDeleted = "CHECKLIST_HARD_DELETED"

	SectionCreated    = "SECTION_CREATED"
	SectionUpdated    = "SECTION_UPDATED"
	SectionDeleted    = "SECTION_DELETED"
	SectionsReordered = "SECTIONS_REORDERED"

	ItemCreated     = "ITEM_CREATED"
	ItemUpdated     = "ITEM_UPDATED"
	ItemDeleted     = "ITEM_DELETED"
	ItemToggled     = "ITEM_TOGGLED"
	ItemsReordered  = "ITEMS_REORDERED"
	ItemsBulkUpdate = "ITEMS_BULK_UPDATE"

	TagCreated    = "TAG_CREATED"
	TagUpdated    = "TAG_UPDATED"
	TagDeleted    = "TAG_DELETED"
	TagAssigned   = "TAG_ASSIGNED"
	TagUnassigned = "TAG_UNASSIGNED"

	CollaboratorInvited     = "COLLABORATOR_INVITED"
	CollaboratorRoleUpdated = "COLLABORATOR_ROLE_UPDATED"
	CollaboratorRemoved     = "COLLABORATOR_REMOVED"
	PublicSharingEnabled    = "PUBLIC_SHARING_ENABLED"
	PublicSharingDisabled   = "PUBLIC_SHARING_DISABLED"

	UserCreated = "USER_CREATED"
	UserUpdated = "USER_UPDATED"
	UserDeleted = "USER_DELETED"
)
