package taskrun

func SetState(state State) UpdateSetter {
	return func(r *Run) error {
		return r.Transition(state)
	}
}

func SetSession(sessionID, liveViewURL string) UpdateSetter {
	return func(r *Run) error {
		r.SessionID = sessionID
		r.LiveViewURL = liveViewURL
		return nil
	}
}

func SetError(err error) UpdateSetter {
	return func(r *Run) error {
		if err != nil {
			r.Error = err.Error()
		}
		return nil
	}
}

func SetTeardownError(err error) UpdateSetter {
	return func(r *Run) error {
		if err != nil {
			r.TeardownError = err.Error()
		}
		return nil
	}
}

func SetArtifactURL(url string) UpdateSetter {
	return func(r *Run) error {
		r.ArtifactURL = url
		return nil
	}
}

func SetFinished(success bool, result string) UpdateSetter {
	return func(r *Run) error {
		return r.Finish(success, result)
	}
}
