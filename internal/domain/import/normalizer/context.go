package normalizer

// Context carries free-text request fields whose content tends to bleed into
// description cells (site name and location printed in page headers).
type Context struct {
	SiteName     string `json:"obra_nome,omitempty"`
	SiteLocation string `json:"obra_localizacao,omitempty"`
}

// Markers returns the dynamic markers derived from the context.
func (c Context) Markers() []string {
	return DynamicMarkers(c.SiteName, c.SiteLocation)
}
