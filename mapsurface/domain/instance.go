package domain

// OwnerID identifica o widget de mapa que pede uma superfície viva.
// É opaco para o agendador e único durante a vida do widget.
type OwnerID string

// Slot é uma alocação de superfície interativa concedida.
type Slot struct {
	Owner    OwnerID
	Priority int
	// InstanceID é sequencial e nunca reutilizado; serve apenas para
	// diagnóstico e desempate (a mais antiga perde primeiro).
	InstanceID uint64
}

// Outcome é a resposta de um pedido de superfície.
type Outcome struct {
	Allowed bool
	// InstanceID é 0 quando Allowed == false.
	InstanceID uint64
}

// Denied é o Outcome de um pedido que não foi (ou não será mais) atendido.
var Denied = Outcome{}
