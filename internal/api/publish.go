package api

import "net/http"

// publish mirrors a converted file through the configured Publisher. A
// failed upload is logged and the local download still works.
func (s *Server) publish(r *http.Request, folder, localPath, contentType string) string {
	if s.publisher == nil {
		return ""
	}

	key, err := s.publisher.Upload(r.Context(), folder, localPath, contentType)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", localPath).Msg("publish converted file failed")
		return ""
	}
	return key
}
