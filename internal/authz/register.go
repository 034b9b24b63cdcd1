package authz

// NewDefaultRegistry wires up one Handler per resource kind named in the
// role-thresholds table (§4.2).
func NewDefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(KindOrganization, NewOrganizationHandler())
	r.Register(KindCourseFamily, NewCourseFamilyHandler())
	r.Register(KindCourse, NewCourseHandler())
	r.Register(KindCourseContent, NewCourseContentHandler())
	r.Register(KindCourseContentType, NewCourseContentTypeHandler())
	r.Register(KindCourseMember, NewCourseMemberHandler())
	r.Register(KindResult, NewResultHandler())
	r.Register(KindExample, NewExampleHandler())
	r.Register(KindMessage, NewMessageHandler())
	r.Register(KindStudentProfile, NewStudentProfileHandler())
	r.Register(KindApiToken, NewApiTokenHandler())
	r.Register(KindUser, NewUserHandler())

	return r
}
