package session

// Observer receives session lifecycle notifications for telemetry.
//
// Methods are called on the session loop and must return quickly.
type Observer interface {
	ConnectionChanged(identity string, connected bool)
	SubscribeAttempted(topic string)
	SubscribeFailed(topic string, err error)
	MessagePublished(topic string)
	MessageReceived(topic string)
	ReducerFailed(actionType string, err error)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) ConnectionChanged(string, bool) {}
func (NopObserver) SubscribeAttempted(string)      {}
func (NopObserver) SubscribeFailed(string, error)  {}
func (NopObserver) MessagePublished(string)        {}
func (NopObserver) MessageReceived(string)         {}
func (NopObserver) ReducerFailed(string, error)    {}

// Observers fans notifications out to several observers in order.
func Observers(obs ...Observer) Observer {
	list := make(multiObserver, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			list = append(list, o)
		}
	}
	return list
}

type multiObserver []Observer

func (m multiObserver) ConnectionChanged(identity string, connected bool) {
	for _, o := range m {
		o.ConnectionChanged(identity, connected)
	}
}

func (m multiObserver) SubscribeAttempted(topic string) {
	for _, o := range m {
		o.SubscribeAttempted(topic)
	}
}

func (m multiObserver) SubscribeFailed(topic string, err error) {
	for _, o := range m {
		o.SubscribeFailed(topic, err)
	}
}

func (m multiObserver) MessagePublished(topic string) {
	for _, o := range m {
		o.MessagePublished(topic)
	}
}

func (m multiObserver) MessageReceived(topic string) {
	for _, o := range m {
		o.MessageReceived(topic)
	}
}

func (m multiObserver) ReducerFailed(actionType string, err error) {
	for _, o := range m {
		o.ReducerFailed(actionType, err)
	}
}
